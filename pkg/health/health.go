// Package health serves liveness and readiness probes backed by periodic
// dependency checks.
//
// A check flips to unhealthy after FailureThreshold consecutive failures and
// back after SuccessThreshold consecutive successes, so a single slow ping
// does not take a replica out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	// Liveness checks fail the process probe; the orchestrator restarts it.
	Liveness Kind = iota
	// Readiness checks take the replica out of load balancing.
	Readiness
	// Informational checks are only reported by StatusHandler.
	Informational
)

// Check describes a registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc

	// FailureThreshold defaults to 3.
	FailureThreshold int
	// SuccessThreshold defaults to 1.
	SuccessThreshold int
}

type checkState struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Only touched by the goroutine running the check.
	fails int
	oks   int
}

func (s *checkState) run(ctx context.Context) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	err := s.Func(ctx)
	s.lastErr.Store(&err)

	if err != nil {
		s.oks = 0
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy.Store(false)
		}
		return
	}
	s.fails = 0
	s.oks++
	if s.oks >= s.SuccessThreshold {
		s.healthy.Store(true)
	}
}

// status is "ok" or the last error of an unhealthy check.
func (s *checkState) status() (string, bool) {
	if s.healthy.Load() {
		return "ok", true
	}
	if p := s.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), false
	}
	return "unhealthy", false
}

// Health aggregates checks. It starts not ready; call SetReady(true) once
// the server accepts traffic and SetReady(false) when draining.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*checkState
}

// New returns an empty Health.
func New() *Health {
	return &Health{}
}

// Add registers c. Checks start healthy until proven otherwise.
func (h *Health) Add(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	s := &checkState{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

func (h *Health) snapshot(kinds ...Kind) []*checkState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*checkState
	for _, s := range h.checks {
		if slices.Contains(kinds, s.Kind) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *checkState) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Run executes every check immediately and then once per interval until ctx
// is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range checks {
		g.Go(func() error {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				s.run(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
				}
			}
		})
	}
	return g.Wait()
}

// SetReady toggles the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready reports whether the gate is open and every readiness check passes.
func (h *Health) Ready() bool {
	if !h.ready.Load() {
		return false
	}
	for _, s := range h.snapshot(Readiness) {
		if !s.healthy.Load() {
			return false
		}
	}
	return true
}

// LiveHandler serves the liveness probe.
func (h *Health) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, true, h.snapshot(Liveness))
	})
}

// ReadyHandler serves the readiness probe.
func (h *Health) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, h.ready.Load(), h.snapshot(Readiness))
	})
}

// StatusHandler reports every check for operators. It is not a probe.
func (h *Health) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, true, h.snapshot(Liveness, Readiness, Informational))
	})
}

// writeProbe renders {"status":..., "checks":{name: "ok"|error}}.
func writeProbe(w http.ResponseWriter, gate bool, checks []*checkState) {
	healthy := gate
	var e jx.Encoder
	e.ObjStart()
	if len(checks) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, s := range checks {
			msg, ok := s.status()
			healthy = healthy && ok
			e.FieldStart(s.Name)
			e.Str(msg)
		}
		e.ObjEnd()
	}
	status, code := "ok", http.StatusOK
	switch {
	case !gate:
		status, code = "not_ready", http.StatusServiceUnavailable
	case !healthy:
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	e.FieldStart("status")
	e.Str(status)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
