// Package accounts stores registered patients and providers and
// authenticates them.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmailTaken is returned when the portal already has an account for the email.
	ErrEmailTaken = errors.New("accounts: email already registered")
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("accounts: account not found")
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
)

// Account is a registered portal user. Profile holds the portal-specific
// registration fields that are not credentials or contact details.
type Account struct {
	ID           string            `json:"id"`
	Portal       string            `json:"portal"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Phone        string            `json:"phone"`
	Profile      map[string]string `json:"profile,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Repository persists accounts. Emails are unique per portal.
type Repository interface {
	Create(ctx context.Context, acct *Account) error
	GetByEmail(ctx context.Context, portal, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
}

// NormalizeEmail lowercases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
