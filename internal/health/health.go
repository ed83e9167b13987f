// Package health aggregates the oracle's subsystem checks into one report.
//
// Critical checks (the store, score freshness) decide whether the service is
// usable. Advisory checks (webhook sinks) can only degrade it.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single checker.
const DefaultCheckTimeout = 3 * time.Second

// State is the aggregate verdict of a report.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// Status represents the health of a single subsystem.
type Status struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Detail   string `json:"detail,omitempty"`
	Advisory bool   `json:"advisory,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Report is the result of running every registered checker.
type Report struct {
	State     State
	Checks    []Status // registration order
	CheckedAt time.Time
}

// OK reports whether every critical check passed.
func (r Report) OK() bool { return r.State != StateUnhealthy }

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
	now      func() time.Time
}

type namedChecker struct {
	name     string
	check    Checker
	advisory bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultCheckTimeout, now: time.Now}
}

// Register adds a critical checker.
func (r *Registry) Register(name string, check Checker) {
	r.add(namedChecker{name: name, check: check})
}

// RegisterAdvisory adds a checker whose failure degrades but does not fail
// the report.
func (r *Registry) RegisterAdvisory(name string, check Checker) {
	r.add(namedChecker{name: name, check: check, advisory: true})
}

func (r *Registry) add(nc namedChecker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, nc)
	r.mu.Unlock()
}

// Check runs all checkers concurrently, each under its own timeout.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	statuses := make([]Status, len(checkers))
	var wg sync.WaitGroup
	for i, nc := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = r.run(ctx, nc)
		}()
	}
	wg.Wait()

	state := StateHealthy
	for _, st := range statuses {
		switch {
		case st.Healthy:
		case st.Advisory:
			if state == StateHealthy {
				state = StateDegraded
			}
		default:
			state = StateUnhealthy
		}
	}

	return Report{State: state, Checks: statuses, CheckedAt: r.now().UTC()}
}

func (r *Registry) run(ctx context.Context, nc namedChecker) (st Status) {
	defer func() {
		if p := recover(); p != nil {
			st = Status{Healthy: false, Detail: fmt.Sprintf("checker panicked: %v", p)}
		}
		st.Name = nc.name
		st.Advisory = nc.advisory
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return nc.check(ctx)
}
