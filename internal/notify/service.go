package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/healthfirst-portals/internal/events"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

// WelcomeConsumer names the welcome email in the processed_events table.
const WelcomeConsumer = "welcome_email"

// Service sends account lifecycle emails.
type Service struct {
	email    EmailSender
	loginURL string
	logger   *logging.Logger
}

// NewService creates a notification service. loginURL is linked from the
// welcome email.
func NewService(email EmailSender, loginURL string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:    email,
		loginURL: loginURL,
		logger:   logger,
	}
}

// Handle implements events.DeliveryHandler. Entries of other types are ignored.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.EventAccountRegistered {
		return nil
	}
	var evt events.AccountRegisteredV1
	if _, err := events.DecodeEnvelope(entry.Payload, &evt); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return s.SendWelcome(ctx, evt)
}

// SendWelcome emails a newly registered patient or provider.
func (s *Service) SendWelcome(ctx context.Context, evt events.AccountRegisteredV1) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping welcome email", "account_id", evt.AccountID)
		return nil
	}
	if strings.TrimSpace(evt.Email) == "" {
		return fmt.Errorf("notify: account %s has no email", evt.AccountID)
	}

	name := strings.TrimSpace(evt.FirstName + " " + evt.LastName)
	greeting := "Welcome to HealthFirst"
	if evt.FirstName != "" {
		greeting = fmt.Sprintf("Welcome to HealthFirst, %s", evt.FirstName)
	}
	role := "patient"
	if evt.Portal == "provider" {
		role = "provider"
	}

	body := fmt.Sprintf("%s!\n\nYour %s account is ready. Sign in at %s to get started.\n", greeting, role, s.loginURL)
	htmlBody := fmt.Sprintf(`<p>%s!</p><p>Your %s account is ready. <a href="%s">Sign in</a> to get started.</p>`,
		html.EscapeString(greeting), role, html.EscapeString(s.loginURL))

	if err := s.email.Send(ctx, EmailMessage{
		To:      evt.Email,
		ToName:  name,
		Subject: "Your HealthFirst account is ready",
		Body:    body,
		HTML:    htmlBody,
	}); err != nil {
		return fmt.Errorf("notify: send welcome email: %w", err)
	}
	s.logger.Info("welcome email sent", "account_id", evt.AccountID, "portal", evt.Portal)
	return nil
}
