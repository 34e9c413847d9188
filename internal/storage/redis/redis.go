// Package redis keeps shopper sessions and idempotency keys in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/freshcart/internal/domain/session"
)

// NewClient parses a redis:// URL and verifies the server is reachable.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

var _ session.Store = (*SessionStore)(nil)

// SessionStore stores session state as JSON values with a sliding TTL.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a SessionStore. Every Save extends the key's
// lifetime to ttl.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return "session:" + id }

// Load returns the state for id, or an empty state if none is stored.
func (s *SessionStore) Load(ctx context.Context, id string) (*session.State, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &session.State{}, nil
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return session.Decode(data)
}

// Save writes the state for id.
func (s *SessionStore) Save(ctx context.Context, id string, st *session.State) error {
	if err := s.rdb.Set(ctx, sessionKey(id), session.Encode(st), s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// IdempotencyGuard remembers request keys so retried submissions are
// detected.
type IdempotencyGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyGuard creates an IdempotencyGuard keeping keys for ttl.
func NewIdempotencyGuard(rdb *redis.Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{rdb: rdb, ttl: ttl}
}

// Claim records key and reports whether this is its first use.
func (g *IdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, "idempotent-key:"+key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}
	return ok, nil
}

// Release forgets key so the request may be retried after a failure.
func (g *IdempotencyGuard) Release(ctx context.Context, key string) error {
	if err := g.rdb.Del(ctx, "idempotent-key:"+key).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}
