package wizard

import (
	"errors"
	"fmt"
	"strings"
)

// FieldKind tells clients which input to render and the engine how to
// normalise values.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextArea FieldKind = "textarea"
	KindEmail    FieldKind = "email"
	KindPhone    FieldKind = "phone"
	KindDate     FieldKind = "date"
	KindNumber   FieldKind = "number"
	KindSelect   FieldKind = "select"
	KindPassword FieldKind = "password"
	KindCheckbox FieldKind = "checkbox"
)

// Option is one allowed value of a select field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Check returns a message when a non-empty value is invalid and "" when it passes.
type Check func(value string, form FormRecord) string

// Field is a single named input slot and the rules it owns.
type Field struct {
	Name  string    `json:"name"`
	Label string    `json:"label"`
	Kind  FieldKind `json:"kind"`

	Required bool `json:"required"`
	// RequiredMessage overrides "<Label> is required".
	RequiredMessage string `json:"-"`
	// MaxLength truncates input; it never produces a validation error.
	MaxLength int      `json:"max_length,omitempty"`
	Options   []Option `json:"options,omitempty"`
	Default   string   `json:"-"`

	Checks []Check `json:"-"`
	// Live fields are validated on every change, not only on step advance.
	Live bool `json:"-"`
	// DependsOn lists fields whose changes re-validate this one.
	DependsOn []string `json:"-"`
	// Sensitive values are never echoed back to clients.
	Sensitive bool `json:"sensitive,omitempty"`
}

func (f Field) requiredMessage() string {
	if f.RequiredMessage != "" {
		return f.RequiredMessage
	}
	return f.Label + " is required"
}

func (f Field) hasOption(v string) bool {
	for _, o := range f.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func (f Field) isEmpty(v string) bool {
	if f.Kind == KindCheckbox {
		return v != "true"
	}
	return strings.TrimSpace(v) == ""
}

// Step is a named, ordered group of fields validated as a unit.
type Step struct {
	Label  string  `json:"label"`
	Fields []Field `json:"fields"`
}

// Definition is the ordered step list of one wizard.
type Definition struct {
	Name  string
	Steps []Step

	index      map[string]fieldRef
	dependants map[string][]string
}

type fieldRef struct {
	step  int
	field Field
}

var errEmptyDefinition = errors.New("wizard: definition needs at least one step")

// NewDefinition indexes the steps and rejects duplicate or dangling field names.
func NewDefinition(name string, steps ...Step) (*Definition, error) {
	if len(steps) == 0 {
		return nil, errEmptyDefinition
	}
	d := &Definition{
		Name:       name,
		Steps:      steps,
		index:      make(map[string]fieldRef),
		dependants: make(map[string][]string),
	}
	for i, step := range steps {
		for _, f := range step.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("wizard: %s step %d has an unnamed field", name, i)
			}
			if _, dup := d.index[f.Name]; dup {
				return nil, fmt.Errorf("wizard: %s declares field %q twice", name, f.Name)
			}
			d.index[f.Name] = fieldRef{step: i, field: f}
		}
	}
	for fieldName, ref := range d.index {
		for _, dep := range ref.field.DependsOn {
			if _, ok := d.index[dep]; !ok {
				return nil, fmt.Errorf("wizard: %s field %q depends on unknown field %q", name, fieldName, dep)
			}
			d.dependants[dep] = append(d.dependants[dep], fieldName)
		}
	}
	return d, nil
}

// MustDefinition is NewDefinition for static definitions.
func MustDefinition(name string, steps ...Step) *Definition {
	d, err := NewDefinition(name, steps...)
	if err != nil {
		panic(err)
	}
	return d
}

// StepCount returns the number of steps.
func (d *Definition) StepCount() int {
	return len(d.Steps)
}

// LastStep returns the index of the terminal step.
func (d *Definition) LastStep() int {
	return len(d.Steps) - 1
}

// Field looks a field up and returns the step that owns it.
func (d *Definition) Field(name string) (Field, int, bool) {
	ref, ok := d.index[name]
	return ref.field, ref.step, ok
}

// NewRecord returns a FormRecord holding every field at its default.
func (d *Definition) NewRecord() FormRecord {
	rec := make(FormRecord, len(d.index))
	for name, ref := range d.index {
		switch {
		case ref.field.Kind == KindCheckbox:
			rec[name] = normaliseBool(ref.field.Default)
		default:
			rec[name] = ref.field.Default
		}
	}
	return rec
}

// SensitiveFields lists fields that must not leave the server.
func (d *Definition) SensitiveFields() []string {
	var out []string
	for _, step := range d.Steps {
		for _, f := range step.Fields {
			if f.Sensitive {
				out = append(out, f.Name)
			}
		}
	}
	return out
}
