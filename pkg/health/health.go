// Package health serves liveness and readiness probes.
//
// Every registered check is polled in its own goroutine. A check flips to
// failing after FailureThreshold consecutive errors and back to passing after
// SuccessThreshold consecutive successes, so a single slow database ping does
// not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc reports nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Options tunes flapping protection.
type Options struct {
	FailureThreshold int
	SuccessThreshold int
	Logger           *zap.Logger
}

func (o *Options) setDefaults() {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// check is polled by exactly one goroutine; only passing and lastErr are
// read concurrently.
type check struct {
	name    string
	probe   Probe
	timeout time.Duration
	fn      CheckFunc

	passing atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *check) run(ctx context.Context, opts Options) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	was := c.passing.Load()
	if err != nil {
		c.successes = 0
		c.fails++
		if c.fails >= opts.FailureThreshold && was {
			c.passing.Store(false)
			opts.Logger.Warn("Health check failing",
				zap.String("check", c.name),
				zap.Stringer("probe", c.probe),
				zap.Int("consecutive_failures", c.fails),
				zap.Error(err),
			)
		}
		return
	}
	c.fails = 0
	c.successes++
	if c.successes >= opts.SuccessThreshold && !was {
		c.passing.Store(true)
		opts.Logger.Info("Health check recovered",
			zap.String("check", c.name),
			zap.Stringer("probe", c.probe),
		)
	}
}

// Health aggregates checks and the manual readiness switch.
type Health struct {
	opts  Options
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New(opts Options) *Health {
	opts.setDefaults()
	return &Health{opts: opts}
}

// Add registers a check. Checks start passing.
func (h *Health) Add(probe Probe, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, probe: probe, timeout: timeout, fn: fn}
	c.passing.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Start polls every check at interval until ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go h.poll(ctx, c, interval)
	}
}

func (h *Health) poll(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx, h.opts)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx, h.opts)
		}
	}
}

// Stop ends polling. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch; the server turns it off
// before draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the switch AND all readiness checks.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

type failure struct {
	name    string
	message string
}

func (h *Health) failures(probe Probe) []failure {
	h.mu.RLock()
	checks := append([]*check(nil), h.checks...)
	h.mu.RUnlock()

	var out []failure
	for _, c := range checks {
		if c.probe != probe || c.passing.Load() {
			continue
		}
		msg := "check is failing"
		if err := c.err(); err != nil {
			msg = err.Error()
		}
		out = append(out, failure{name: c.name, message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures = append([]failure{{name: "_readiness", message: "service is not ready"}}, failures...)
	}
	writeStatus(w, failures)
}

// writeStatus writes {"status":"ok"} or
// {"status":"unhealthy","checks":{name:message}}.
func writeStatus(w http.ResponseWriter, failures []failure) {
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
		for _, f := range failures {
			e.FieldStart(f.name)
			e.Str(f.message)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
