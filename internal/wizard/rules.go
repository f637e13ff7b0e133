package wizard

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// User-facing validation messages shared by both portals.
const (
	MsgInvalidEmail      = "Please enter a valid email address"
	MsgInvalidPhone      = "Please enter a valid phone number"
	MsgInvalidZip        = "Please enter a valid ZIP code"
	MsgInvalidLicense    = "License number must be 6-15 alphanumeric characters"
	MsgWeakPassword      = "Password must be at least 8 characters with uppercase, lowercase, number, and special character"
	MsgPasswordMismatch  = "Passwords do not match"
	MsgInvalidBirthDate  = "Please enter a valid date of birth"
	MsgExperienceRange   = "Years of experience must be between 0 and 50"
	MsgPasswordTooShort  = "Password must be at least 8 characters long"
	defaultPasswordChars = "@$!%*?&"
)

// Rules is the single validation configuration shared by every wizard and the
// login form. Build it once and pass it by reference.
type Rules struct {
	Email      *regexp.Regexp
	Phone      *regexp.Regexp
	PhoneStrip *regexp.Regexp
	Zip        *regexp.Regexp
	License    *regexp.Regexp

	PasswordMinLength int
	PasswordSpecials  string

	MinAge        int
	MaxAge        int
	ExperienceMin float64
	ExperienceMax float64

	// Now is the clock used for age checks.
	Now func() time.Time
}

// DefaultRules returns the rule set used by the patient and provider portals.
func DefaultRules() *Rules {
	return &Rules{
		Email:             regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
		Phone:             regexp.MustCompile(`^[+]?[1-9][0-9]{0,15}$`),
		PhoneStrip:        regexp.MustCompile(`[\s\-()]`),
		Zip:               regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$`),
		License:           regexp.MustCompile(`^[A-Z0-9]{6,15}$`),
		PasswordMinLength: 8,
		PasswordSpecials:  defaultPasswordChars,
		MinAge:            0,
		MaxAge:            150,
		ExperienceMin:     0,
		ExperienceMax:     50,
		Now:               time.Now,
	}
}

// ValidEmail reports whether s looks like local@domain.tld.
func (r *Rules) ValidEmail(s string) bool {
	return r.Email.MatchString(s)
}

// ValidPhone strips spaces, hyphens and parentheses before matching.
func (r *Rules) ValidPhone(s string) bool {
	return r.Phone.MatchString(r.PhoneStrip.ReplaceAllString(s, ""))
}

// ValidZip accepts 12345 and 12345-6789.
func (r *Rules) ValidZip(s string) bool {
	return r.Zip.MatchString(s)
}

// ValidLicense is case-sensitive: lowercase input fails.
func (r *Rules) ValidLicense(s string) bool {
	return r.License.MatchString(s)
}

// StrongPassword requires the minimum length plus one lowercase letter, one
// uppercase letter, one digit and one special character. RE2 has no
// lookahead, so each class is checked separately.
func (r *Rules) StrongPassword(s string) bool {
	if utf8.RuneCountInString(s) < r.PasswordMinLength {
		return false
	}
	var lower, upper, digit, special bool
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(r.PasswordSpecials, c):
			special = true
		}
	}
	return lower && upper && digit && special
}

// ValidBirthDate parses s and checks the year-based age range. Month and day
// are ignored, so anyone born this year is age 0.
func (r *Rules) ValidBirthDate(s string) bool {
	birth, ok := parseDate(s)
	if !ok {
		return false
	}
	age := r.now().Year() - birth.Year()
	return age >= r.MinAge && age <= r.MaxAge
}

// ValidExperience accepts a finite number in the inclusive experience range.
func (r *Rules) ValidExperience(s string) bool {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	return n >= r.ExperienceMin && n <= r.ExperienceMax
}

func (r *Rules) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Checks built from the shared rules.

func (r *Rules) EmailCheck() Check {
	return predicate(r.ValidEmail, MsgInvalidEmail)
}

func (r *Rules) PhoneCheck() Check {
	return predicate(r.ValidPhone, MsgInvalidPhone)
}

func (r *Rules) ZipCheck() Check {
	return predicate(r.ValidZip, MsgInvalidZip)
}

func (r *Rules) LicenseCheck() Check {
	return predicate(r.ValidLicense, MsgInvalidLicense)
}

func (r *Rules) PasswordCheck() Check {
	return predicate(r.StrongPassword, MsgWeakPassword)
}

func (r *Rules) BirthDateCheck() Check {
	return predicate(r.ValidBirthDate, MsgInvalidBirthDate)
}

func (r *Rules) ExperienceCheck() Check {
	return predicate(r.ValidExperience, MsgExperienceRange)
}

// MinLength fails values shorter than n characters.
func MinLength(n int, msg string) Check {
	return func(v string, _ FormRecord) string {
		if utf8.RuneCountInString(v) < n {
			return msg
		}
		return ""
	}
}

// MatchesField fails when the value differs from another field's current value.
func MatchesField(other, msg string) Check {
	return func(v string, form FormRecord) string {
		if v != form[other] {
			return msg
		}
		return ""
	}
}

func predicate(ok func(string) bool, msg string) Check {
	return func(v string, _ FormRecord) string {
		if !ok(v) {
			return msg
		}
		return ""
	}
}
