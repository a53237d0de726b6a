package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"authcore.dev/internal/auth"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "user_session:u1", []byte(`{"user_id":"u1"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := m.Get(ctx, "user_session:u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"user_id":"u1"}` {
		t.Fatalf("unexpected value: %s", data)
	}
	ok, err := m.Exists(ctx, "user_session:u1")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	if err := m.Delete(ctx, "user_session:u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "user_session:u1"); !errors.Is(err, auth.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	m.SetClock(func() time.Time { return now })

	if err := m.Set(ctx, "k", []byte("v"), 15*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(16 * time.Minute)

	if _, err := m.Get(ctx, "k"); !errors.Is(err, auth.ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
	ok, _ := m.Exists(ctx, "k")
	if ok {
		t.Fatal("expected expired entry to not exist")
	}
}
