package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by SessionCache.Get when the key is absent.
// Absence is never an error condition for callers: the session projection
// is always recomputable from the relational data.
var ErrCacheMiss = errors.New("auth: cache miss")

// SessionCache is the byte-level contract of the distributed cache
// collaborator. Keys take the form user_session:{userId}.
type SessionCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

const sessionKeyPrefix = "user_session:"

// SessionGateway is the write-through cache of a user's resolved roles and
// permissions. It is best-effort and never the source of truth; callers
// needing authoritative state recompute via Aggregate.
type SessionGateway struct {
	cache SessionCache
	ttl   time.Duration
}

// NewSessionGateway wraps cache with the given entry TTL.
func NewSessionGateway(cache SessionCache, ttl time.Duration) *SessionGateway {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SessionGateway{cache: cache, ttl: ttl}
}

// Put stores the session projection under the user's key.
func (g *SessionGateway) Put(ctx context.Context, session Session) error {
	if g == nil || g.cache == nil {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return g.cache.Set(ctx, sessionKeyPrefix+session.UserID, data, g.ttl)
}

// Get returns the cached projection, or ok=false when absent or stale.
func (g *SessionGateway) Get(ctx context.Context, userID string) (Session, bool, error) {
	if g == nil || g.cache == nil {
		return Session{}, false, nil
	}
	data, err := g.cache.Get(ctx, sessionKeyPrefix+userID)
	if errors.Is(err, ErrCacheMiss) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return session, true, nil
}

// Invalidate removes the user's cached session.
func (g *SessionGateway) Invalidate(ctx context.Context, userID string) error {
	if g == nil || g.cache == nil {
		return nil
	}
	return g.cache.Delete(ctx, sessionKeyPrefix+userID)
}
