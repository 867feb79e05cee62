package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling the guarded function while the
// breaker rejects requests.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail with ErrOpen
	StateHalfOpen              // a limited number of trial calls pass
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// MaxTrialCalls limits concurrent calls while half-open.
	MaxTrialCalls int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		MaxTrialCalls:    1,
	}
}

// Breaker stops calling a failing dependency for OpenTimeout once
// FailureThreshold consecutive calls have failed.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	trials    int
	changedAt time.Time
	rejected  int64

	onStateChange func(name string, from, to State)
}

func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.MaxTrialCalls <= 0 {
		cfg.MaxTrialCalls = def.MaxTrialCalls
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now, changedAt: time.Now()}
}

// OnStateChange registers fn to be called synchronously, outside the
// breaker's lock, after every transition.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

func (b *Breaker) Execute(fn func() error) error {
	_, err := Execute(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// Execute runs fn through b. Errors from fn are returned unwrapped.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	b.record(err == nil)
	return v, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	var notify func()
	defer func() {
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.changedAt) < b.cfg.OpenTimeout {
			b.rejected++
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		notify = b.transition(StateHalfOpen)
		b.trials++
		return nil
	case StateHalfOpen:
		if b.trials >= b.cfg.MaxTrialCalls {
			b.rejected++
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.trials++
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	var notify func()
	defer func() {
		b.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch b.state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			notify = b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trials--
		if !ok {
			notify = b.transition(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			notify = b.transition(StateClosed)
		}
	}
}

// transition must be called with mu held. The returned func, if any,
// runs the state change callback and must be called after unlocking.
func (b *Breaker) transition(to State) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	b.changedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.trials = 0

	fn := b.onStateChange
	if fn == nil {
		return nil
	}
	name := b.name
	return func() { fn(name, from, to) }
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

type Stats struct {
	State     State
	Failures  int
	Rejected  int64
	ChangedAt time.Time
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{State: b.state, Failures: b.failures, Rejected: b.rejected, ChangedAt: b.changedAt}
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.transition(StateClosed)
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}
