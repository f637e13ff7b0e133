package accounts

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/healthfirst-portals/internal/events"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

var tracer = otel.Tracer("healthfirst.internal.accounts")

// User-facing failure messages.
const (
	MsgEmailTaken         = "An account with this email already exists"
	MsgPasswordTooLong    = "Password is too long"
	MsgInvalidCredentials = "Invalid credentials"
)

// Fields copied onto Account columns; everything else that is not a
// credential goes into Profile.
var accountColumns = map[string]bool{
	"email":           true,
	"firstName":       true,
	"lastName":        true,
	"phoneNumber":     true,
	"password":        true,
	"confirmPassword": true,
}

// Publisher appends domain events to the outbox.
type Publisher interface {
	Publish(ctx context.Context, aggregate string, evt events.CanonicalEvent) error
}

// LoginRequest is the login form.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID string    `json:"account_id"`
	Portal    string    `json:"portal"`
}

// ValidationError carries login field errors.
type ValidationError struct {
	Fields wizard.ErrorMap
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("accounts: login form has %d invalid fields", len(e.Fields))
}

// Service registers and authenticates portal accounts.
type Service struct {
	repo      Repository
	tokens    *TokenIssuer
	login     *wizard.Definition
	publisher Publisher
	logger    *logging.Logger

	demoFailureEmail string
	hashCost         int
	text             *bluemonday.Policy
	dummyHash        func() []byte
	now              func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher emits account.registered.v1 for each new account.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithDemoFailureEmail makes every login and registration for email fail.
// It exists for front-end demos of the error states.
func WithDemoFailureEmail(email string) Option {
	return func(s *Service) { s.demoFailureEmail = NormalizeEmail(email) }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost {
			s.hashCost = cost
		}
	}
}

func NewService(repo Repository, tokens *TokenIssuer, rules *wizard.Rules, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("accounts: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if rules == nil {
		rules = wizard.DefaultRules()
	}
	s := &Service{
		repo:     repo,
		tokens:   tokens,
		login:    portal.LoginDefinition(rules),
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		text:     bluemonday.StrictPolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash = sync.OnceValue(func() []byte {
		h, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.hashCost)
		return h
	})
	return s
}

// Registrar returns the registration service for a portal's wizard.
func (s *Service) Registrar(kind portal.Kind) wizard.Registrar {
	return wizard.RegistrarFunc(func(ctx context.Context, form wizard.FormRecord) (string, error) {
		return s.Register(ctx, kind, form)
	})
}

// Register creates an account from a completed registration form.
func (s *Service) Register(ctx context.Context, kind portal.Kind, form wizard.FormRecord) (string, error) {
	ctx, span := tracer.Start(ctx, "accounts.register")
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.portal", string(kind)))

	email := NormalizeEmail(form["email"])
	if s.demoFailureEmail != "" && email == s.demoFailureEmail {
		err := &wizard.SubmissionError{Message: wizard.DefaultFailureMessage, Err: errors.New("accounts: demo failure email")}
		span.RecordError(err)
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form["password"]), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", &wizard.SubmissionError{Message: MsgPasswordTooLong, Err: err}
		}
		span.RecordError(err)
		return "", fmt.Errorf("accounts: hash password: %w", err)
	}

	acct := &Account{
		ID:           uuid.NewString(),
		Portal:       string(kind),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    s.plainText(form["firstName"]),
		LastName:     s.plainText(form["lastName"]),
		Phone:        form["phoneNumber"],
		Profile:      make(map[string]string),
		CreatedAt:    s.now().UTC(),
	}
	for name, value := range form {
		if !accountColumns[name] && value != "" {
			acct.Profile[name] = s.plainText(value)
		}
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrEmailTaken) {
			return "", &wizard.SubmissionError{Message: MsgEmailTaken, Err: err}
		}
		return "", err
	}
	span.SetAttributes(attribute.String("healthfirst.account_id", acct.ID))

	if s.publisher != nil {
		evt := events.AccountRegisteredV1{
			AccountID:    acct.ID,
			Portal:       acct.Portal,
			Email:        acct.Email,
			FirstName:    acct.FirstName,
			LastName:     acct.LastName,
			RegisteredAt: acct.CreatedAt,
		}
		if err := s.publisher.Publish(ctx, "account:"+acct.ID, evt); err != nil {
			// The account exists; only the welcome email is lost.
			s.logger.Error("failed to publish account registered event", "error", err, "account_id", acct.ID)
		}
	}

	s.logger.Info("account registered", "account_id", acct.ID, "portal", acct.Portal)
	return acct.ID, nil
}

// Login validates the form, checks credentials and issues a session token.
// Credential failures always return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, kind portal.Kind, req LoginRequest) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "accounts.login")
	defer span.End()
	span.SetAttributes(attribute.String("healthfirst.portal", string(kind)))

	if errs := portal.ValidateLogin(s.login, req.Email, req.Password); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	email := NormalizeEmail(req.Email)
	if s.demoFailureEmail != "" && email == s.demoFailureEmail {
		return nil, ErrInvalidCredentials
	}

	acct, err := s.repo.GetByEmail(ctx, string(kind), email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Spend comparable time so unknown emails are not distinguishable.
			_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(req.Password))
			return nil, ErrInvalidCredentials
		}
		span.RecordError(err)
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		span.RecordError(err)
		return nil, fmt.Errorf("accounts: verify password: %w", err)
	}

	if s.tokens == nil {
		return nil, errors.New("accounts: token issuer not configured")
	}
	token, expires, err := s.tokens.Issue(acct, req.RememberMe)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("healthfirst.account_id", acct.ID))
	return &LoginResult{Token: token, ExpiresAt: expires, AccountID: acct.ID, Portal: acct.Portal}, nil
}

// plainText strips markup from free text before it is stored.
func (s *Service) plainText(v string) string {
	return html.UnescapeString(s.text.Sanitize(v))
}
