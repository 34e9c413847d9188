// Package memory provides process-local stores for development and tests.
//
// Entries expire after their TTL like their Redis counterparts. Expired
// entries are invisible immediately and freed by Sweep, which Run calls
// periodically.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/freshcart/internal/domain/session"
)

// Sweeper drops expired entries.
type Sweeper interface {
	Sweep(now time.Time)
}

// Run sweeps every store each interval until ctx is done.
func Run(ctx context.Context, interval time.Duration, stores ...Sweeper) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, s := range stores {
				s.Sweep(now)
			}
		}
	}
}

var _ session.Store = (*SessionStore)(nil)

type sessionEntry struct {
	raw     []byte
	expires time.Time
}

// SessionStore keeps sessions in a map with a sliding TTL. States are copied
// through the encoded form so callers never share memory with the store.
type SessionStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]sessionEntry
	now  func() time.Time
}

// NewSessionStore creates an empty SessionStore. Every Save extends the
// session's lifetime to ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{ttl: ttl, data: make(map[string]sessionEntry), now: time.Now}
}

func (s *SessionStore) Load(_ context.Context, id string) (*session.State, error) {
	s.mu.Lock()
	e, ok := s.data[id]
	s.mu.Unlock()
	if !ok || !s.now().Before(e.expires) {
		return &session.State{}, nil
	}
	return session.Decode(e.raw)
}

func (s *SessionStore) Save(_ context.Context, id string, st *session.State) error {
	raw := session.Encode(st)
	s.mu.Lock()
	s.data[id] = sessionEntry{raw: raw, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

// Sweep drops sessions that expired at or before now.
func (s *SessionStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.data {
		if !now.Before(e.expires) {
			delete(s.data, id)
		}
	}
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// IdempotencyGuard is an in-process idempotency key set.
type IdempotencyGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

// NewIdempotencyGuard creates an IdempotencyGuard keeping keys for ttl.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (g *IdempotencyGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.keys[key] = now.Add(g.ttl)
	return true, nil
}

func (g *IdempotencyGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	return nil
}

// Sweep drops keys that expired at or before now.
func (g *IdempotencyGuard) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, exp := range g.keys {
		if !now.Before(exp) {
			delete(g.keys, k)
		}
	}
}

// Len returns the number of remembered keys, expired or not.
func (g *IdempotencyGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}
