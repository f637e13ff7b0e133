// Package portal declares the patient and provider registration wizards.
package portal

import (
	"fmt"
	"strings"

	"github.com/wolfman30/healthfirst-portals/internal/wizard"
)

// Kind names a portal.
type Kind string

const (
	Patient  Kind = "patient"
	Provider Kind = "provider"
)

// Kinds lists every portal in routing order.
var Kinds = []Kind{Patient, Provider}

// ParseKind validates a portal name taken from a URL.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Patient, Provider:
		return k, nil
	default:
		return "", fmt.Errorf("portal: unknown portal %q", s)
	}
}

// Registry maps each portal to its wizard definition, all sharing one rule set.
type Registry struct {
	Rules       *wizard.Rules
	definitions map[Kind]*wizard.Definition
}

// NewRegistry builds both wizard definitions from rules.
func NewRegistry(rules *wizard.Rules) *Registry {
	if rules == nil {
		rules = wizard.DefaultRules()
	}
	return &Registry{
		Rules: rules,
		definitions: map[Kind]*wizard.Definition{
			Patient:  PatientDefinition(rules),
			Provider: ProviderDefinition(rules),
		},
	}
}

// Definition returns the wizard for k.
func (r *Registry) Definition(k Kind) (*wizard.Definition, bool) {
	def, ok := r.definitions[k]
	return def, ok
}

func nameField(name, label string) wizard.Field {
	msg := label + " must be at least 2 characters"
	return wizard.Field{
		Name:            name,
		Label:           label,
		Kind:            wizard.KindText,
		Required:        true,
		RequiredMessage: msg,
		MaxLength:       50,
		Checks:          []wizard.Check{wizard.MinLength(2, msg)},
		Live:            true,
	}
}

func emailField(rules *wizard.Rules) wizard.Field {
	return wizard.Field{
		Name:     "email",
		Label:    "Email",
		Kind:     wizard.KindEmail,
		Required: true,
		Checks:   []wizard.Check{rules.EmailCheck()},
		Live:     true,
	}
}

func phoneField(rules *wizard.Rules, name, label string) wizard.Field {
	return wizard.Field{
		Name:     name,
		Label:    label,
		Kind:     wizard.KindPhone,
		Required: true,
		Checks:   []wizard.Check{rules.PhoneCheck()},
		Live:     true,
	}
}

func addressFields(rules *wizard.Rules) []wizard.Field {
	return []wizard.Field{
		{Name: "streetAddress", Label: "Street address", Kind: wizard.KindText, Required: true, MaxLength: 200},
		{Name: "city", Label: "City", Kind: wizard.KindText, Required: true, MaxLength: 100},
		{Name: "state", Label: "State", Kind: wizard.KindText, Required: true, MaxLength: 50},
		{
			Name:     "zipCode",
			Label:    "ZIP code",
			Kind:     wizard.KindText,
			Required: true,
			Checks:   []wizard.Check{rules.ZipCheck()},
			Live:     true,
		},
	}
}

func passwordFields(rules *wizard.Rules) []wizard.Field {
	return []wizard.Field{
		{
			Name:      "password",
			Label:     "Password",
			Kind:      wizard.KindPassword,
			Required:  true,
			Checks:    []wizard.Check{rules.PasswordCheck()},
			Live:      true,
			Sensitive: true,
		},
		{
			Name:            "confirmPassword",
			Label:           "Confirm password",
			Kind:            wizard.KindPassword,
			Required:        true,
			RequiredMessage: "Please confirm your password",
			Checks:          []wizard.Check{wizard.MatchesField("password", wizard.MsgPasswordMismatch)},
			Live:            true,
			DependsOn:       []string{"password"},
			Sensitive:       true,
		},
	}
}
