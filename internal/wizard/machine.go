package wizard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TimeoutFailureMessage is shown when the registration service misses its deadline.
const TimeoutFailureMessage = "Registration timed out. Please try again."

// DefaultSubmitTimeout bounds a registration call when no timeout is configured.
const DefaultSubmitTimeout = 30 * time.Second

// Registrar creates an account from a completed form.
type Registrar interface {
	Register(ctx context.Context, form FormRecord) (string, error)
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(ctx context.Context, form FormRecord) (string, error)

func (f RegistrarFunc) Register(ctx context.Context, form FormRecord) (string, error) {
	return f(ctx, form)
}

// SubmissionError is a registration failure whose Message may be shown to the user.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// FailureMessage maps a registrar error to the banner text.
func FailureMessage(err error) string {
	var subErr *SubmissionError
	switch {
	case errors.As(err, &subErr) && subErr.Message != "":
		return subErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutFailureMessage
	default:
		return DefaultFailureMessage
	}
}

// Settle calls reg with a deadline and returns the action that completes the
// pending submission. A registrar that ignores ctx is abandoned at the deadline.
func Settle(ctx context.Context, reg Registrar, form FormRecord, timeout time.Duration) (Action, error) {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := reg.Register(ctx, form.Clone())
		done <- result{id: id, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return SubmitFailed{Message: FailureMessage(res.err)}, res.err
		}
		return SubmitSucceeded{AccountID: res.id}, nil
	case <-ctx.Done():
		return SubmitFailed{Message: FailureMessage(ctx.Err())}, ctx.Err()
	}
}

// Machine owns one wizard State and serialises every transition on it.
type Machine struct {
	def      *Definition
	timeout  time.Duration
	listener func(Action, State)

	mu    sync.Mutex
	state State
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithTimeout sets the registration deadline.
func WithTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithState resumes a machine from a stored state.
func WithState(s State) MachineOption {
	return func(m *Machine) {
		m.state = s.Clone()
	}
}

// WithListener registers fn to observe every accepted transition. It runs
// after the transition is applied, outside the machine's lock.
func WithListener(fn func(Action, State)) MachineOption {
	return func(m *Machine) {
		m.listener = fn
	}
}

// NewMachine returns a machine at the definition's initial state.
func NewMachine(def *Definition, opts ...MachineOption) *Machine {
	if def == nil {
		panic("wizard: definition is required")
	}
	m := &Machine{
		def:     def,
		timeout: DefaultSubmitTimeout,
		state:   NewState(def),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Definition returns the wizard's step definition.
func (m *Machine) Definition() *Definition {
	return m.def
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Dispatch applies a synchronous action. The state changes even when the
// error is ErrStepInvalid, so the caller sees the step errors.
func (m *Machine) Dispatch(a Action) (State, error) {
	m.mu.Lock()
	next, err := Reduce(m.def, m.state, a)
	m.state = next
	out := next.Clone()
	m.mu.Unlock()

	if err == nil && m.listener != nil {
		m.listener(a, out.Clone())
	}
	return out, err
}

// Submit validates the last step, calls reg and settles the outcome. A second
// Submit while the first is in flight returns ErrSubmissionInFlight at once.
// The registrar's error is returned after the state has been settled.
func (m *Machine) Submit(ctx context.Context, reg Registrar) (State, error) {
	pending, err := m.Dispatch(BeginSubmit{})
	if err != nil {
		return pending, err
	}

	outcome, regErr := Settle(ctx, reg, pending.Form, m.timeout)

	settled, err := m.Dispatch(outcome)
	if err != nil {
		return settled, err
	}
	return settled, regErr
}
