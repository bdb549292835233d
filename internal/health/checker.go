package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Component is the result of one component check.
type Component struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"` // database, cache, ...
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckFunc probes a single component.
type CheckFunc func(ctx context.Context) error

type probe struct {
	name  string
	typ   string
	check CheckFunc
}

// Checker performs health checks on registered components.
type Checker struct {
	mu      sync.Mutex
	probes  []probe
	timeout time.Duration
}

// New creates a checker with the given per-probe timeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout}
}

// Register adds a component probe.
func (c *Checker) Register(name, typ string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe{name: name, typ: typ, check: check})
}

// Check runs every probe and returns per-component results plus an overall
// healthy flag.
func (c *Checker) Check(ctx context.Context) ([]Component, bool) {
	c.mu.Lock()
	probes := make([]probe, len(c.probes))
	copy(probes, c.probes)
	c.mu.Unlock()

	healthy := true
	results := make([]Component, 0, len(probes))
	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := p.check(probeCtx)
		cancel()

		comp := Component{
			Name:      p.name,
			Type:      p.typ,
			Status:    StatusHealthy,
			Latency:   time.Since(start) / time.Millisecond,
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			comp.Status = StatusUnhealthy
			comp.Error = err.Error()
			healthy = false
		}
		results = append(results, comp)
	}
	return results, healthy
}
