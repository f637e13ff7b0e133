package events

import "time"

// EventAccountRegistered is published once per created account.
const EventAccountRegistered = "account.registered.v1"

// AccountRegisteredV1 announces a new patient or provider account. It carries
// contact details for the welcome email and nothing from the medical step.
type AccountRegisteredV1 struct {
	AccountID    string    `json:"account_id"`
	Portal       string    `json:"portal"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (AccountRegisteredV1) EventType() string { return EventAccountRegistered }
