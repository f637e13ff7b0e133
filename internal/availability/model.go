// Package availability manages the appointment slots providers publish.
package availability

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when the provider has no such slot.
	ErrNotFound = errors.New("availability: slot not found")
	// ErrOverlap is returned when a slot overlaps another slot of the same provider.
	ErrOverlap = errors.New("availability: slot overlaps an existing slot")
)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04"
	maxNotesLength  = 500
	maxBaseFee      = 100000
	defaultCurrency = "USD"
)

// AppointmentTypes lists the bookable appointment kinds.
var AppointmentTypes = []string{"consultation", "follow_up", "emergency", "telemedicine"}

// LocationTypes lists where an appointment takes place.
var LocationTypes = []string{"clinic", "hospital", "telemedicine", "home_visit"}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Slot is a window of time a provider accepts appointments.
type Slot struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	LocationType    string    `json:"location_type"`
	AppointmentType string    `json:"appointment_type"`
	BaseFee         float64   `json:"base_fee"`
	Currency        string    `json:"currency"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SlotInput is the writable part of a slot.
type SlotInput struct {
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	LocationType    string  `json:"location_type"`
	AppointmentType string  `json:"appointment_type"`
	BaseFee         float64 `json:"base_fee"`
	Currency        string  `json:"currency"`
	Notes           string  `json:"notes"`
}

// ValidationError maps input fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("availability: %d invalid fields", len(e.Fields))
}

// Overlaps reports whether two slots on the same date share any time.
// Touching slots (one ends when the next starts) do not overlap.
func (s Slot) Overlaps(other Slot) bool {
	return s.Date == other.Date && s.StartTime < other.EndTime && other.StartTime < s.EndTime
}

// normalize trims and canonicalises in place, then validates.
func (in *SlotInput) normalize() error {
	in.Date = strings.TrimSpace(in.Date)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.LocationType = strings.ToLower(strings.TrimSpace(in.LocationType))
	in.AppointmentType = strings.ToLower(strings.TrimSpace(in.AppointmentType))
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	in.Notes = strings.TrimSpace(in.Notes)
	in.BaseFee = math.Round(in.BaseFee*100) / 100

	errs := map[string]string{}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		errs["date"] = "Please enter a valid date"
	}
	start, startErr := time.Parse(timeLayout, in.StartTime)
	if startErr != nil {
		errs["start_time"] = "Please enter a valid start time"
	}
	end, endErr := time.Parse(timeLayout, in.EndTime)
	if endErr != nil {
		errs["end_time"] = "Please enter a valid end time"
	}
	if startErr == nil && endErr == nil {
		// Canonical HH:MM keeps string comparison in Overlaps correct.
		in.StartTime = start.Format(timeLayout)
		in.EndTime = end.Format(timeLayout)
		if !end.After(start) {
			errs["end_time"] = "End time must be after start time"
		}
	}
	if !contains(LocationTypes, in.LocationType) {
		errs["location_type"] = "Please select a valid location type"
	}
	if !contains(AppointmentTypes, in.AppointmentType) {
		errs["appointment_type"] = "Please select a valid appointment type"
	}
	if math.IsNaN(in.BaseFee) || in.BaseFee < 0 || in.BaseFee > maxBaseFee {
		errs["base_fee"] = "Base fee must be a non-negative amount"
	}
	if !currencyPattern.MatchString(in.Currency) {
		errs["currency"] = "Currency must be a 3-letter code"
	}
	if utf8.RuneCountInString(in.Notes) > maxNotesLength {
		errs["notes"] = fmt.Sprintf("Notes must be at most %d characters", maxNotesLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
