package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a field name is not part of the definition.
	ErrUnknownField = errors.New("wizard: unknown field")
	// ErrFieldNotOnStep is returned when editing a field the current step does not own.
	ErrFieldNotOnStep = errors.New("wizard: field is not on the current step")
	// ErrStepInvalid is returned when step validation leaves errors behind.
	ErrStepInvalid = errors.New("wizard: step has validation errors")
	// ErrFirstStep is returned when retreating from the first step.
	ErrFirstStep = errors.New("wizard: already on the first step")
	// ErrLastStep is returned when advancing from the final step; only submit leaves it.
	ErrLastStep = errors.New("wizard: already on the last step")
	// ErrNotLastStep is returned when submitting before the final step.
	ErrNotLastStep = errors.New("wizard: submit is only available on the last step")
	// ErrSubmissionInFlight is returned while a submission is pending.
	ErrSubmissionInFlight = errors.New("wizard: submission already in progress")
	// ErrNotPending is returned when settling a submission that was never started.
	ErrNotPending = errors.New("wizard: no submission in progress")
	// ErrCompleted is returned for any action after a successful registration.
	ErrCompleted = errors.New("wizard: registration already completed")
)

// DefaultFailureMessage is shown when the registration service gives no reason.
const DefaultFailureMessage = "Registration failed. Please try again."

// Action is a named state transition.
type Action interface {
	actionName() string
}

// SetField stores a value and runs incremental validation.
type SetField struct {
	Name  string
	Value string
}

// AdvanceStep validates the current step and moves forward when it is clean.
type AdvanceStep struct{}

// RetreatStep moves back one step without validating.
type RetreatStep struct{}

// BeginSubmit validates the last step and marks the submission pending.
type BeginSubmit struct{}

// SubmitSucceeded settles a pending submission with the new account.
type SubmitSucceeded struct {
	AccountID string
}

// SubmitFailed settles a pending submission with a user-displayable reason.
type SubmitFailed struct {
	Message string
}

func (SetField) actionName() string        { return "set_field" }
func (AdvanceStep) actionName() string     { return "advance_step" }
func (RetreatStep) actionName() string     { return "retreat_step" }
func (BeginSubmit) actionName() string     { return "begin_submit" }
func (SubmitSucceeded) actionName() string { return "submit_succeeded" }
func (SubmitFailed) actionName() string    { return "submit_failed" }

// ActionName returns the stable name used in logs and metrics.
func ActionName(a Action) string {
	if a == nil {
		return "unknown"
	}
	return a.actionName()
}

// Reduce applies a to s and returns the next state. s is never modified. When
// the action is refused the returned state equals s, except for
// ErrStepInvalid where it carries the fresh step errors.
func Reduce(def *Definition, s State, a Action) (State, error) {
	if s.Status == StatusSuccess {
		return s, ErrCompleted
	}
	switch act := a.(type) {
	case SetField:
		return reduceSetField(def, s, act)
	case AdvanceStep:
		return reduceAdvance(def, s)
	case RetreatStep:
		return reduceRetreat(s)
	case BeginSubmit:
		return reduceBeginSubmit(def, s)
	case SubmitSucceeded:
		if s.Status != StatusPending {
			return s, ErrNotPending
		}
		next := s.Clone()
		next.Status = StatusSuccess
		next.AccountID = act.AccountID
		next.General = ""
		return next, nil
	case SubmitFailed:
		if s.Status != StatusPending {
			return s, ErrNotPending
		}
		next := s.Clone()
		next.Status = StatusFailure
		next.General = act.Message
		if next.General == "" {
			next.General = DefaultFailureMessage
		}
		return next, nil
	default:
		return s, fmt.Errorf("wizard: unsupported action %T", a)
	}
}

func reduceSetField(def *Definition, s State, act SetField) (State, error) {
	if s.Status == StatusPending {
		return s, ErrSubmissionInFlight
	}
	f, step, ok := def.Field(act.Name)
	if !ok {
		return s, fmt.Errorf("%w: %s", ErrUnknownField, act.Name)
	}
	if step != s.Step {
		return s, fmt.Errorf("%w: %s", ErrFieldNotOnStep, act.Name)
	}

	next := s.Clone()
	next.Form[f.Name] = normalise(f, act.Value)
	revalidate(f, next.Form, next.Errors)

	for _, depName := range def.dependants[f.Name] {
		dep, _, _ := def.Field(depName)
		if dep.isEmpty(next.Form[depName]) {
			continue
		}
		revalidate(dep, next.Form, next.Errors)
	}
	return next, nil
}

func reduceAdvance(def *Definition, s State) (State, error) {
	if s.Status == StatusPending {
		return s, ErrSubmissionInFlight
	}
	if s.Step >= def.LastStep() {
		return s, ErrLastStep
	}
	next := s.Clone()
	next.Errors = ValidateStep(def, next.Form, next.Step)
	if len(next.Errors) > 0 {
		return next, ErrStepInvalid
	}
	next.Step++
	return next, nil
}

func reduceRetreat(s State) (State, error) {
	if s.Status == StatusPending {
		return s, ErrSubmissionInFlight
	}
	if s.Step <= 0 {
		return s, ErrFirstStep
	}
	next := s.Clone()
	next.Step--
	return next, nil
}

func reduceBeginSubmit(def *Definition, s State) (State, error) {
	if s.Status == StatusPending {
		return s, ErrSubmissionInFlight
	}
	if s.Step != def.LastStep() {
		return s, ErrNotLastStep
	}
	next := s.Clone()
	next.Errors = ValidateStep(def, next.Form, next.Step)
	if len(next.Errors) > 0 {
		return next, ErrStepInvalid
	}
	next.Status = StatusPending
	next.General = ""
	return next, nil
}
