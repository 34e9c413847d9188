// Package health serves liveness and readiness probes backed by periodic
// background checks.
//
// A check flips to unhealthy only after FailureThreshold consecutive failures
// and back after SuccessThreshold consecutive successes, so a single slow
// database ping does not pull the pod out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	// Liveness checks detect a wedged process that should be restarted.
	Liveness Kind = iota
	// Readiness checks detect a process that cannot serve traffic yet.
	Readiness
)

// Option tunes a registered check.
type Option func(*check)

// Timeout bounds a single run of the check. Defaults to one second.
func Timeout(d time.Duration) Option {
	return func(c *check) { c.timeout = d }
}

// Thresholds sets how many consecutive failures mark the check unhealthy and
// how many consecutive successes mark it healthy again. Defaults to 3 and 1.
func Thresholds(failure, success int) Option {
	return func(c *check) {
		c.failureThreshold = failure
		c.successThreshold = success
	}
}

type check struct {
	name             string
	fn               CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	// Only touched by the goroutine running the check.
	fails, oks int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.fn(ctx); err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.oks = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.lastErr.Store(nil)
	c.fails = 0
	c.oks++
	if c.oks >= c.successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil {
		return *p, true
	}
	return "check is unhealthy", true
}

// Health tracks registered checks and the manual ready flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[Kind][]*check
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{checks: make(map[Kind][]*check)}
}

// Register adds a check. Checks start out healthy. Register before Run.
func (h *Health) Register(kind Kind, name string, fn CheckFunc, opts ...Option) {
	c := &check{
		name:             name,
		fn:               fn,
		timeout:          time.Second,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks[kind] = append(h.checks[kind], c)
	h.mu.Unlock()
}

// Run executes every check immediately and then every interval until ctx is
// done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	h.mu.RLock()
	var all []*check
	for _, list := range h.checks {
		all = append(all, list...)
	}
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range all {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// SetReady flips the manual readiness flag, e.g. off during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Failures returns the failing checks of kind keyed by name. Readiness also
// reports the manual flag under "_readiness".
func (h *Health) Failures(kind Kind) map[string]string {
	h.mu.RLock()
	checks := h.checks[kind]
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range checks {
		if msg, failed := c.failure(); failed {
			out[c.name] = msg
		}
	}
	if kind == Readiness && !h.ready.Load() {
		out["_readiness"] = "service is not ready"
	}
	return out
}

// Handler serves the probe for kind: 200 {"status":"ok"} or 503 with the
// failing checks.
func (h *Health) Handler(kind Kind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		failures := h.Failures(kind)

		e := jx.GetEncoder()
		defer jx.PutEncoder(e)

		status := http.StatusOK
		e.ObjStart()
		e.FieldStart("status")
		if len(failures) == 0 {
			e.Str("ok")
		} else {
			status = http.StatusServiceUnavailable
			e.Str("unhealthy")
			e.FieldStart("checks")
			e.ObjStart()
			names := make([]string, 0, len(failures))
			for name := range failures {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				e.FieldStart(name)
				e.Str(failures[name])
			}
			e.ObjEnd()
		}
		e.ObjEnd()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(e.Bytes())
	})
}
