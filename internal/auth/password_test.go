package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if !VerifyPassword(hash, "correct-horse-battery-staple") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Fatal("wrong password accepted")
	}
}

func TestHashPasswordEmptyInput(t *testing.T) {
	hash, err := HashPassword("")
	if err != nil {
		t.Fatalf("empty password must hash: %v", err)
	}
	if !VerifyPassword(hash, "") {
		t.Fatal("empty password rejected against its own hash")
	}
	if VerifyPassword(hash, "not empty") {
		t.Fatal("non-empty password accepted against empty hash")
	}
}

func TestHashPasswordNoTruncation(t *testing.T) {
	prefix := strings.Repeat("a", 100)
	hash, err := HashPassword(prefix + "-one")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	// Inputs identical for the first 100 bytes must still be distinguished.
	if VerifyPassword(hash, prefix+"-two") {
		t.Fatal("long passwords are being truncated")
	}
	if !VerifyPassword(hash, prefix+"-one") {
		t.Fatal("long password rejected against its own hash")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	h1, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must not share a salt")
	}
	if !VerifyPassword(h1, "same input") || !VerifyPassword(h2, "same input") {
		t.Fatal("both hashes must verify")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, hash := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=2,p=1$notbase64!!$alsonot!!",
		"$argon2i$v=19$m=65536,t=2,p=1$c2FsdA$aGFzaA",
	} {
		if VerifyPassword(hash, "anything") {
			t.Fatalf("malformed hash %q accepted", hash)
		}
	}
}
