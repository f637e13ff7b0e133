// Package compliance records the HIPAA audit trail for registration and login.
// Audit rows carry field names and outcomes, never field values.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// EventRegistrationStarted is logged when a wizard session is created.
	EventRegistrationStarted AuditEventType = "registration.started"
	// EventStepAdvanced is logged when a step validates and the wizard moves on.
	EventStepAdvanced AuditEventType = "registration.step_advanced"
	// EventStepRejected is logged when step validation leaves errors.
	EventStepRejected AuditEventType = "registration.step_rejected"
	// EventSubmissionFailed is logged when the registration call fails or times out.
	EventSubmissionFailed AuditEventType = "registration.submission_failed"
	// EventRegistrationCompleted is logged when an account is created.
	EventRegistrationCompleted AuditEventType = "registration.completed"
	// EventRegistrationCancelled is logged when a client discards its session.
	EventRegistrationCancelled AuditEventType = "registration.cancelled"
	// EventLoginSucceeded is logged on a successful portal login.
	EventLoginSucceeded AuditEventType = "auth.login_succeeded"
	// EventLoginFailed is logged on rejected credentials.
	EventLoginFailed AuditEventType = "auth.login_failed"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID         string          `json:"id"`
	EventType  AuditEventType  `json:"event_type"`
	Portal     string          `json:"portal"`
	SessionID  string          `json:"session_id,omitempty"`
	AccountID  string          `json:"account_id,omitempty"`
	Step       int             `json:"step"`
	FieldNames []string        `json:"field_names,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	StepLabel string `json:"step_label,omitempty"`
	// Reason is the user-facing failure message, never the raw error.
	Reason     string `json:"reason,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

// AuditService handles audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO registration_audit_events (
			id, event_type, portal, session_id, account_id,
			step, field_names, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Portal,
		nullString(event.SessionID),
		nullString(event.AccountID),
		event.Step,
		pq.Array(event.FieldNames),
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogStepRejected logs which fields blocked a step.
func (s *AuditService) LogStepRejected(ctx context.Context, portal, sessionID string, step int, stepLabel string, fields []string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{StepLabel: stepLabel})

	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventStepRejected,
		Portal:     portal,
		SessionID:  sessionID,
		Step:       step,
		FieldNames: fields,
		Details:    detailsJSON,
	})
}

// LogSubmissionFailed logs a failed registration attempt.
func (s *AuditService) LogSubmissionFailed(ctx context.Context, portal, sessionID string, step int, reason string) error {
	detailsJSON, _ := json.Marshal(AuditDetails{Reason: reason})

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventSubmissionFailed,
		Portal:    portal,
		SessionID: sessionID,
		Step:      step,
		Details:   detailsJSON,
	})
}

// LogLogin logs a login attempt. accountID is empty on failure.
func (s *AuditService) LogLogin(ctx context.Context, portal, accountID string, ok, rememberMe bool, remoteAddr string) error {
	eventType := EventLoginSucceeded
	if !ok {
		eventType = EventLoginFailed
	}
	detailsJSON, _ := json.Marshal(AuditDetails{RememberMe: rememberMe, RemoteAddr: remoteAddr})

	return s.LogEvent(ctx, AuditEvent{
		EventType: eventType,
		Portal:    portal,
		AccountID: accountID,
		Details:   detailsJSON,
	})
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
