// Package health tracks the readiness of the service's backing
// dependencies (ledger database, event brokers) with periodic probes.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values reported per dependency.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

type probeFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (p probeFunc) Name() string                    { return p.name }
func (p probeFunc) Check(ctx context.Context) error { return p.fn(ctx) }

// ProbeFunc adapts fn into a Probe called name.
func ProbeFunc(name string, fn func(ctx context.Context) error) Probe {
	return probeFunc{name: name, fn: fn}
}

// DependencyStatus is the last known state of one dependency.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Failures  int       `json:"consecutiveFailures"`
	LastError string    `json:"lastError,omitempty"`
	CheckedAt time.Time `json:"checkedAt,omitzero"`
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Checker runs the registered probes and keeps per-dependency state. A
// dependency turns degraded after FailThreshold consecutive failures and
// healthy again on the first success.
type Checker struct {
	probes    []Probe
	mu        sync.RWMutex
	state     map[string]*DependencyStatus
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker for probes.
func New(cfg Config, logger *zap.Logger, probes ...Probe) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	state := make(map[string]*DependencyStatus, len(probes))
	for _, p := range probes {
		state[p.Name()] = &DependencyStatus{Name: p.Name(), Status: StatusUnknown}
	}
	return &Checker{
		probes: probes,
		state:  state,
		cfg:    cfg,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start checks immediately, then on every interval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently and waits for them.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range h.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			defer cancel()
			h.record(p.Name(), p.Check(pctx))
		}()
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state[name]
	prev := st.Status
	st.CheckedAt = time.Now().UTC()
	if err == nil {
		st.Failures = 0
		st.LastError = ""
		st.Status = StatusHealthy
		if prev == StatusDegraded {
			h.logger.Info("health: recovered", zap.String("dependency", name))
		}
		return
	}

	st.Failures++
	st.LastError = err.Error()
	if st.Failures >= h.cfg.FailThreshold {
		st.Status = StatusDegraded
		// Log once, on the transition.
		if prev != StatusDegraded {
			h.logger.Warn("health: degraded",
				zap.String("dependency", name),
				zap.Int("fail_count", st.Failures),
				zap.Error(err),
			)
		}
	}
}

// Snapshot returns the state of every dependency, sorted by name.
func (h *Checker) Snapshot() []DependencyStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DependencyStatus, 0, len(h.state))
	for _, st := range h.state {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether no dependency is degraded.
func (h *Checker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, st := range h.state {
		if st.Status == StatusDegraded {
			return false
		}
	}
	return true
}
