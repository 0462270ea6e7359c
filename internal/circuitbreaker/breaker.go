// Package circuitbreaker stops calling a detection endpoint that keeps
// failing. Circuits are kept per business type: a failing native-transfer
// endpoint does not block URL or transaction screening.
package circuitbreaker

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/txinsight/internal/risk"
)

// State of one business type's circuit.
type State int

const (
	StateClosed   State = iota // calls flow
	StateOpen                  // calls rejected until the cooldown ends
	StateHalfOpen              // a single trial call is in flight
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
	Namespace: "txinsight",
	Subsystem: "detect_breaker",
	Name:      "transitions_total",
	Help:      "Detection circuit breaker state changes by business type.",
}, []string{"business", "from", "to"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

// ErrOpen is returned by Execute while a business type's circuit is open.
var ErrOpen = errors.New("circuitbreaker: circuit open")

const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker holds one circuit per business type. A nil *Breaker lets every
// call through.
type Breaker struct {
	mu        sync.Mutex
	circuits  map[risk.BusinessType]*circuit
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New returns a breaker that opens a circuit after threshold consecutive
// failures and allows a trial call once cooldown has passed.
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	b := &Breaker{
		circuits:  make(map[risk.BusinessType]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn unless the circuit for business is open, and records the
// outcome.
func (b *Breaker) Execute(business risk.BusinessType, fn func() error) error {
	if b == nil {
		return fn()
	}
	if !b.acquire(business) {
		return ErrOpen
	}
	err := fn()
	b.record(business, err == nil)
	return err
}

// acquire decides whether a call may start. An open circuit past its
// cooldown admits exactly one trial call.
func (b *Breaker) acquire(business risk.BusinessType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[business]
	if !ok {
		return true
	}
	switch c.state {
	case StateOpen:
		if b.now().Sub(c.openedAt) < b.cooldown {
			return false
		}
		b.move(business, c, StateHalfOpen)
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

func (b *Breaker) record(business risk.BusinessType, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.circuits[business]
	if ok {
		if exists {
			c.failures = 0
			b.move(business, c, StateClosed)
		}
		return
	}
	if !exists {
		c = &circuit{}
		b.circuits[business] = c
	}
	c.failures++
	if c.state == StateHalfOpen || c.failures >= b.threshold {
		c.openedAt = b.now()
		b.move(business, c, StateOpen)
	}
}

// move changes state. Caller holds b.mu.
func (b *Breaker) move(business risk.BusinessType, c *circuit, to State) {
	if c.state == to {
		return
	}
	transitionsTotal.WithLabelValues(string(business), c.state.String(), to.String()).Inc()
	c.state = to
}

// State reports the circuit state for business. Business types that never
// failed are closed.
func (b *Breaker) State(business risk.BusinessType) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[business]; ok {
		return c.state
	}
	return StateClosed
}

// Open lists the business types whose circuits are not closed, sorted.
func (b *Breaker) Open() []risk.BusinessType {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []risk.BusinessType
	for business, c := range b.circuits {
		if c.state != StateClosed {
			out = append(out, business)
		}
	}
	slices.Sort(out)
	return out
}
