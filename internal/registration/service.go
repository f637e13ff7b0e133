package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/healthfirst-portals/internal/compliance"
	"github.com/wolfman30/healthfirst-portals/internal/observability/metrics"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

var tracer = otel.Tracer("healthfirst.internal.registration")

const (
	defaultSessionTTL   = 2 * time.Hour
	defaultCompletedTTL = 10 * time.Minute
	editLockTTL         = 5 * time.Second
	lockAttempts        = 10
	lockBackoff         = 25 * time.Millisecond
)

// RegistrarSource hands out the registration service for a portal.
type RegistrarSource interface {
	Registrar(kind portal.Kind) wizard.Registrar
}

type auditLogger interface {
	LogEvent(ctx context.Context, event compliance.AuditEvent) error
	LogStepRejected(ctx context.Context, portal, sessionID string, step int, stepLabel string, fields []string) error
	LogSubmissionFailed(ctx context.Context, portal, sessionID string, step int, reason string) error
}

// Service drives wizard sessions. Every mutation runs under the session lock,
// so concurrent requests against one session are serialised across instances.
type Service struct {
	registry   *portal.Registry
	store      Store
	locker     Locker
	registrars RegistrarSource
	audit      auditLogger
	metrics    *metrics.RegistrationMetrics
	logger     *logging.Logger

	sessionTTL    time.Duration
	completedTTL  time.Duration
	submitTimeout time.Duration
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithAudit(a auditLogger) Option {
	return func(s *Service) { s.audit = a }
}

func WithMetrics(m *metrics.RegistrationMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithSubmitTimeout bounds each call to the registration service.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

func NewService(registry *portal.Registry, store Store, locker Locker, registrars RegistrarSource, logger *logging.Logger, opts ...Option) *Service {
	if registry == nil || store == nil || locker == nil || registrars == nil {
		panic("registration: registry, store, locker and registrars are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		registry:      registry,
		store:         store,
		locker:        locker,
		registrars:    registrars,
		logger:        logger,
		sessionTTL:    defaultSessionTTL,
		completedTTL:  defaultCompletedTTL,
		submitTimeout: wizard.DefaultSubmitTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Definition returns the wizard definition for a portal.
func (s *Service) Definition(kind portal.Kind) (*wizard.Definition, error) {
	def, ok := s.registry.Definition(kind)
	if !ok {
		return nil, fmt.Errorf("registration: %w: %s", ErrSessionNotFound, kind)
	}
	return def, nil
}

// Start creates a session at the first step with every field at its default.
func (s *Service) Start(ctx context.Context, kind portal.Kind) (*Session, error) {
	ctx, span := tracer.Start(ctx, "registration.start")
	defer span.End()

	def, err := s.Definition(kind)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Portal:    kind,
		State:     wizard.NewState(def),
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("healthfirst.session_id", sess.ID), attribute.String("healthfirst.portal", string(kind)))

	if err := s.store.Save(ctx, sess, s.sessionTTL); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.recordAudit(ctx, compliance.AuditEvent{EventType: compliance.EventRegistrationStarted, Portal: string(kind), SessionID: sess.ID})
	s.metrics.ObserveAction(string(kind), "start", "ok")
	s.logger.Info("registration started", "session_id", sess.ID, "portal", kind)
	return sess, nil
}

// Get returns a session owned by the portal.
func (s *Service) Get(ctx context.Context, kind portal.Kind, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Portal != kind {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SetField stores one value and returns the session with incremental errors.
func (s *Service) SetField(ctx context.Context, kind portal.Kind, id, name, value string) (*Session, error) {
	return s.SetFields(ctx, kind, id, map[string]string{name: value})
}

// SetFields applies several values atomically: either all are stored or none.
// Values are applied in definition order.
func (s *Service) SetFields(ctx context.Context, kind portal.Kind, id string, values map[string]string) (*Session, error) {
	return s.mutate(ctx, kind, id, "set_field", func(def *wizard.Definition, m *wizard.Machine) error {
		for name := range values {
			if _, _, ok := def.Field(name); !ok {
				return fmt.Errorf("%w: %s", wizard.ErrUnknownField, name)
			}
		}
		for _, step := range def.Steps {
			for _, f := range step.Fields {
				v, ok := values[f.Name]
				if !ok {
					continue
				}
				if _, err := m.Dispatch(wizard.SetField{Name: f.Name, Value: v}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Next validates the current step and advances when it is clean. On
// wizard.ErrStepInvalid the returned session carries the step errors.
func (s *Service) Next(ctx context.Context, kind portal.Kind, id string) (*Session, error) {
	return s.mutate(ctx, kind, id, "advance_step", func(def *wizard.Definition, m *wizard.Machine) error {
		from := m.State().Step
		st, err := m.Dispatch(wizard.AdvanceStep{})
		switch {
		case errors.Is(err, wizard.ErrStepInvalid):
			s.stepRejected(ctx, kind, id, def, from, st.Errors)
		case err == nil:
			s.recordAudit(ctx, compliance.AuditEvent{EventType: compliance.EventStepAdvanced, Portal: string(kind), SessionID: id, Step: from})
		}
		return err
	})
}

// Back returns to the previous step without validation.
func (s *Service) Back(ctx context.Context, kind portal.Kind, id string) (*Session, error) {
	return s.mutate(ctx, kind, id, "retreat_step", func(_ *wizard.Definition, m *wizard.Machine) error {
		_, err := m.Dispatch(wizard.RetreatStep{})
		return err
	})
}

// Submit validates the last step and calls the registration service. A
// registration failure is not an error: the returned session is in the
// failure state with a user-facing message.
func (s *Service) Submit(ctx context.Context, kind portal.Kind, id string) (*Session, error) {
	ctx, span := tracer.Start(ctx, "registration.submit")
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.session_id", id), attribute.String("healthfirst.portal", string(kind)))

	def, err := s.Definition(kind)
	if err != nil {
		return nil, err
	}
	// The lock must outlive the registration call.
	release, err := s.lock(ctx, id, s.submitTimeout+editLockTTL)
	if err != nil {
		return nil, s.busyError(ctx, kind, id, err)
	}
	defer s.unlock(release, id)

	sess, err := s.loadLocked(ctx, def, kind, id)
	if err != nil {
		return nil, err
	}

	m := wizard.NewMachine(def,
		wizard.WithState(sess.State),
		wizard.WithTimeout(s.submitTimeout),
		wizard.WithListener(func(a wizard.Action, st wizard.State) {
			if _, ok := a.(wizard.BeginSubmit); !ok {
				return
			}
			pending := *sess
			pending.State = st
			pending.UpdatedAt = s.now().UTC()
			if err := s.store.Save(ctx, &pending, s.sessionTTL); err != nil {
				s.logger.Error("failed to persist pending submission", "error", err, "session_id", id)
			}
		}),
	)

	done := s.metrics.SubmissionStarted(string(kind))
	st, regErr := m.Submit(ctx, s.registrars.Registrar(kind))
	switch {
	case errors.Is(regErr, wizard.ErrStepInvalid):
		done("invalid")
		s.stepRejected(ctx, kind, id, def, st.Step, st.Errors)
	case errors.Is(regErr, wizard.ErrNotLastStep), errors.Is(regErr, wizard.ErrCompleted), errors.Is(regErr, wizard.ErrSubmissionInFlight):
		done("refused")
		return nil, regErr
	case st.Status == wizard.StatusFailure:
		done("failure")
		span.RecordError(regErr)
		s.logger.Warn("registration failed", "error", regErr, "session_id", id, "portal", kind)
		if s.audit != nil {
			if err := s.audit.LogSubmissionFailed(ctx, string(kind), id, st.Step, st.General); err != nil {
				s.logger.Error("audit log failed", "error", err, "session_id", id)
			}
		}
	case st.Status == wizard.StatusSuccess:
		done("success")
		span.SetAttributes(attribute.String("healthfirst.account_id", st.AccountID))
		s.recordAudit(ctx, compliance.AuditEvent{
			EventType: compliance.EventRegistrationCompleted,
			Portal:    string(kind),
			SessionID: id,
			AccountID: st.AccountID,
			Step:      st.Step,
		})
		s.logger.Info("registration completed", "session_id", id, "portal", kind, "account_id", st.AccountID)
	}

	sess.State = st
	sess.UpdatedAt = s.now().UTC()
	ttl := s.sessionTTL
	if st.Completed() {
		// Keep only the outcome so late requests see a completed session.
		sess.State.Form = wizard.FormRecord{}
		ttl = s.completedTTL
	}
	if err := s.store.Save(ctx, sess, ttl); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if errors.Is(regErr, wizard.ErrStepInvalid) {
		return sess, regErr
	}
	return sess, nil
}

// Cancel discards a session and everything entered into it. A session with a
// submission in flight cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, kind portal.Kind, id string) error {
	ctx, span := tracer.Start(ctx, "registration.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.session_id", id), attribute.String("healthfirst.portal", string(kind)))

	def, err := s.Definition(kind)
	if err != nil {
		return err
	}
	release, err := s.lock(ctx, id, editLockTTL)
	if err != nil {
		return s.busyError(ctx, kind, id, err)
	}
	defer s.unlock(release, id)

	sess, err := s.loadLocked(ctx, def, kind, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		span.RecordError(err)
		return err
	}
	s.recordAudit(ctx, compliance.AuditEvent{EventType: compliance.EventRegistrationCancelled, Portal: string(kind), SessionID: id, Step: sess.State.Step})
	s.metrics.ObserveAction(string(kind), "cancel", "ok")
	s.logger.Info("registration cancelled", "session_id", id, "portal", kind)
	return nil
}

type mutation func(def *wizard.Definition, m *wizard.Machine) error

// mutate loads the session under its lock, applies fn and saves the result.
// The result is saved for wizard.ErrStepInvalid so step errors persist; any
// other error discards the change.
func (s *Service) mutate(ctx context.Context, kind portal.Kind, id, action string, fn mutation) (*Session, error) {
	ctx, span := tracer.Start(ctx, "registration."+action)
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.session_id", id), attribute.String("healthfirst.portal", string(kind)))

	def, err := s.Definition(kind)
	if err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, id, editLockTTL)
	if err != nil {
		return nil, s.busyError(ctx, kind, id, err)
	}
	defer s.unlock(release, id)

	sess, err := s.loadLocked(ctx, def, kind, id)
	if err != nil {
		return nil, err
	}

	m := wizard.NewMachine(def, wizard.WithState(sess.State))
	fnErr := fn(def, m)
	if fnErr != nil && !errors.Is(fnErr, wizard.ErrStepInvalid) {
		s.metrics.ObserveAction(string(kind), action, "refused")
		return sess, fnErr
	}

	sess.State = m.State()
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess, s.sessionTTL); err != nil {
		span.RecordError(err)
		return nil, err
	}
	outcome := "ok"
	if fnErr != nil {
		outcome = "invalid"
	}
	s.metrics.ObserveAction(string(kind), action, outcome)
	return sess, fnErr
}

// loadLocked reads a session while holding its lock. A pending status seen
// here belongs to a submitter that died, so it is settled as a failure.
func (s *Service) loadLocked(ctx context.Context, def *wizard.Definition, kind portal.Kind, id string) (*Session, error) {
	sess, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if sess.State.Status == wizard.StatusPending {
		s.logger.Warn("recovering abandoned submission", "session_id", id)
		sess.State, _ = wizard.Reduce(def, sess.State, wizard.SubmitFailed{})
	}
	return sess, nil
}

func (s *Service) lock(ctx context.Context, id string, ttl time.Duration) (Release, error) {
	var lastErr error
	for attempt := 0; attempt < lockAttempts; attempt++ {
		release, err := s.locker.Acquire(ctx, lockKey(id), ttl)
		if err == nil {
			return release, nil
		}
		lastErr = err
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return nil, lastErr
}

func (s *Service) unlock(release Release, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		s.logger.Error("failed to release session lock", "error", err, "session_id", id)
	}
}

// busyError explains a lock failure: a pending submission, or a plain
// concurrent request.
func (s *Service) busyError(ctx context.Context, kind portal.Kind, id string, lockErr error) error {
	if !errors.Is(lockErr, ErrLockHeld) {
		return lockErr
	}
	sess, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if sess.State.Status == wizard.StatusPending {
		return wizard.ErrSubmissionInFlight
	}
	return ErrSessionBusy
}

func (s *Service) stepRejected(ctx context.Context, kind portal.Kind, id string, def *wizard.Definition, step int, errs wizard.ErrorMap) {
	s.metrics.ObserveStepRejected(string(kind), strconv.Itoa(step))
	if s.audit == nil {
		return
	}
	fields := errs.Fields()
	sort.Strings(fields)
	if err := s.audit.LogStepRejected(ctx, string(kind), id, step, def.Steps[step].Label, fields); err != nil {
		s.logger.Error("audit log failed", "error", err, "session_id", id)
	}
}

func (s *Service) recordAudit(ctx context.Context, event compliance.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Error("audit log failed", "error", err, "event_type", event.EventType, "session_id", event.SessionID)
	}
}
