package mutation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/cmsync/query"
)

// ErrPanicked wraps a panic recovered from a mutation's operation.
var ErrPanicked = errors.New("mutation panicked")

// State is the status of the most recent invocation.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Invalidator is the part of the query cache a mutation needs.
type Invalidator interface {
	Invalidate(prefixes ...query.Key)
}

// Callbacks are invoked after the invocation settles. Any of them may be
// nil. OnSettled always runs last.
type Callbacks[Out any] struct {
	OnSuccess func(out Out)
	OnError   func(message string, err error)
	OnSettled func(out Out, err error)
}

// Outcome summarizes one invocation for observers.
type Outcome struct {
	Name     string
	Duration time.Duration
	Err      error
	// Rejected is true when input validation failed and nothing was sent.
	Rejected bool
}

type config struct {
	cache     Invalidator
	keys      []query.Key
	deriveKey func(in, out any) []query.Key
	validator *Validator
	logger    *slog.Logger
	observer  func(Outcome)
}

// Option configures a [Mutation].
type Option func(*config)

// WithInvalidation invalidates keys (by prefix) in cache after every
// successful invocation.
func WithInvalidation(cache Invalidator, keys ...query.Key) Option {
	return func(c *config) {
		c.cache = cache
		c.keys = append(c.keys, keys...)
	}
}

// WithKeysFunc adds keys computed from the invocation's input and output,
// e.g. the post that was edited.
func WithKeysFunc[In, Out any](fn func(in In, out Out) []query.Key) Option {
	return func(c *config) {
		c.deriveKey = func(in, out any) []query.Key {
			i, _ := in.(In)
			o, _ := out.(Out)
			return fn(i, o)
		}
	}
}

// WithValidator checks inputs before the operation runs.
func WithValidator(v *Validator) Option {
	return func(c *config) { c.validator = v }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers fn to receive one [Outcome] per invocation.
func WithObserver(fn func(Outcome)) Option {
	return func(c *config) { c.observer = fn }
}

// Mutation wraps one state-changing operation. It is safe for concurrent
// use; State and LastError describe the most recently started invocation.
type Mutation[In, Out any] struct {
	name string
	do   func(ctx context.Context, in In) (Out, error)
	cfg  config

	pending atomic.Int32

	mu      sync.Mutex
	seq     uint64
	state   State
	lastErr error
}

// New returns a Mutation named name that runs do.
func New[In, Out any](name string, do func(ctx context.Context, in In) (Out, error), opts ...Option) *Mutation[In, Out] {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mutation[In, Out]{name: name, do: do, cfg: cfg}
}

// Name returns the mutation name.
func (m *Mutation[In, Out]) Name() string { return m.name }

// Mutate validates in, runs the operation and settles the state. The error
// is also delivered to cb.OnError together with its user facing message.
//
// Input rejected by the validator is returned as an [ErrValidation] error
// without starting an invocation: State, LastError and the callbacks are
// left untouched.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In, cb Callbacks[Out]) (Out, error) {
	start := time.Now()
	var out Out

	if err := m.cfg.validator.Validate(in); err != nil {
		m.cfg.logger.Debug("mutation: input rejected", slog.String("mutation", m.name), slog.String("error", err.Error()))
		m.observe(Outcome{Name: m.name, Duration: time.Since(start), Err: err, Rejected: true})
		return out, err
	}

	m.pending.Add(1)
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.state = StatePending
	m.mu.Unlock()

	settled := false
	defer func() {
		if !settled {
			m.pending.Add(-1)
		}
	}()

	out, err := m.invoke(ctx, in)
	if err == nil {
		m.invalidate(in, out)
		m.settle(seq, StateSuccess, nil)
	} else {
		m.settle(seq, StateError, err)
		m.cfg.logger.Warn("mutation: failed", slog.String("mutation", m.name), slog.String("error", err.Error()))
	}
	settled = true

	m.report(cb, out, err)
	m.observe(Outcome{Name: m.name, Duration: time.Since(start), Err: err})
	return out, err
}

func (m *Mutation[In, Out]) invoke(ctx context.Context, in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanicked, m.name, r)
		}
	}()
	return m.do(ctx, in)
}

func (m *Mutation[In, Out]) invalidate(in In, out Out) {
	if m.cfg.cache == nil {
		return
	}
	keys := m.cfg.keys
	if m.cfg.deriveKey != nil {
		keys = append(append([]query.Key(nil), keys...), m.cfg.deriveKey(in, out)...)
	}
	if len(keys) > 0 {
		m.cfg.cache.Invalidate(keys...)
	}
}

func (m *Mutation[In, Out]) settle(seq uint64, s State, err error) {
	m.mu.Lock()
	if seq == m.seq {
		m.state = s
		m.lastErr = err
	}
	m.mu.Unlock()
	m.pending.Add(-1)
}

func (m *Mutation[In, Out]) report(cb Callbacks[Out], out Out, err error) {
	if err == nil {
		if cb.OnSuccess != nil {
			cb.OnSuccess(out)
		}
	} else if cb.OnError != nil {
		cb.OnError(Message(err), err)
	}
	if cb.OnSettled != nil {
		cb.OnSettled(out, err)
	}
}

func (m *Mutation[In, Out]) observe(o Outcome) {
	if m.cfg.observer != nil {
		m.cfg.observer(o)
	}
}

// State returns the state of the most recently started invocation.
func (m *Mutation[In, Out]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsPending reports whether any invocation is in flight.
func (m *Mutation[In, Out]) IsPending() bool { return m.pending.Load() > 0 }

// LastError returns the error of the most recent invocation, or nil.
func (m *Mutation[In, Out]) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Reset returns the mutation to idle. It does not affect invocations in
// flight.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	m.seq++
	m.state = StateIdle
	m.lastErr = nil
	m.mu.Unlock()
}
