// Package registration hosts wizard sessions for the patient and provider
// portals: storage, per-session locking, the service and its HTTP handler.
package registration

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("registration: session not found")
	// ErrSessionBusy is returned when another request holds the session lock.
	ErrSessionBusy = errors.New("registration: session is busy")
)

// Session is the server-side owner of one wizard state.
type Session struct {
	ID        string       `json:"id"`
	Portal    portal.Kind  `json:"portal"`
	State     wizard.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store persists sessions. Save refreshes the session's expiry.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Locker grants exclusive access to a key for at most ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Release gives a lock back. Releasing an expired lock is a no-op.
type Release func(ctx context.Context) error

// ErrLockHeld is returned by Locker.Acquire when the key is taken.
var ErrLockHeld = errors.New("registration: lock held")
