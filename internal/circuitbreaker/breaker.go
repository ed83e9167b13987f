// Package circuitbreaker guards outbound event sinks. Each sink (a webhook
// URL, a broker topic) has its own circuit that opens after consecutive
// failures and lets a single probe through once the cool-down has passed.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned by Execute when the circuit for a sink is open.
var ErrOpen = errors.New("circuit open")

// State of one sink's circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riskoracle",
	Subsystem: "sink",
	Name:      "circuit_transitions_total",
	Help:      "Event sink circuit state transitions.",
}, []string{"sink", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

type circuit struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker tracks one circuit per sink.
type Breaker struct {
	mu           sync.Mutex
	circuits     map[string]*circuit
	threshold    int
	openDuration time.Duration
	now          func() time.Time
	onTransition func(sink string, from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook is called, outside the lock, on every state change.
func WithTransitionHook(fn func(sink string, from, to State)) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New creates a breaker that opens a sink's circuit after threshold
// consecutive failures and keeps it open for openDuration.
func New(threshold int, openDuration time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	b := &Breaker{
		circuits:     make(map[string]*circuit),
		threshold:    threshold,
		openDuration: openDuration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a delivery to sink may be attempted. An open
// circuit whose cool-down has passed moves to half-open and admits one probe.
func (b *Breaker) Allow(sink string) bool {
	b.mu.Lock()
	c, ok := b.circuits[sink]
	if !ok {
		b.mu.Unlock()
		return true
	}

	var fire func()
	allowed := true
	switch c.state {
	case StateOpen:
		if b.now().Sub(c.lastFailure) >= b.openDuration {
			fire = b.transition(c, sink, StateHalfOpen)
		} else {
			allowed = false
		}
	case StateHalfOpen:
		allowed = false // probe in flight
	}
	b.mu.Unlock()

	if fire != nil {
		fire()
	}
	return allowed
}

// RecordSuccess closes the sink's circuit and resets its failure count.
func (b *Breaker) RecordSuccess(sink string) {
	b.mu.Lock()
	c, ok := b.circuits[sink]
	if !ok {
		b.mu.Unlock()
		return
	}
	c.failures = 0
	fire := b.transition(c, sink, StateClosed)
	b.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// RecordFailure counts a failed delivery. A failed probe reopens the circuit.
func (b *Breaker) RecordFailure(sink string) {
	b.mu.Lock()
	c, ok := b.circuits[sink]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[sink] = c
	}
	c.failures++
	c.lastFailure = b.now()

	var fire func()
	if c.state == StateHalfOpen || (c.state == StateClosed && c.failures >= b.threshold) {
		fire = b.transition(c, sink, StateOpen)
	}
	b.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Execute runs fn if sink's circuit allows it and records the outcome.
func (b *Breaker) Execute(sink string, fn func() error) error {
	if !b.Allow(sink) {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure(sink)
		return err
	}
	b.RecordSuccess(sink)
	return nil
}

// State returns the sink's state. Unknown sinks are closed.
func (b *Breaker) State(sink string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[sink]; ok {
		return c.state
	}
	return StateClosed
}

// transition must be called with b.mu held. It returns the hook call to
// make after unlocking, or nil.
func (b *Breaker) transition(c *circuit, sink string, to State) func() {
	from := c.state
	if from == to {
		return nil
	}
	c.state = to
	transitionsTotal.WithLabelValues(sink, from.String(), to.String()).Inc()
	if b.onTransition == nil {
		return nil
	}
	hook := b.onTransition
	return func() { hook(sink, from, to) }
}
