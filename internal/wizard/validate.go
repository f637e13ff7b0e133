package wizard

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValidateValue runs a field's rules against v. Empty values fail only when
// enforceRequired is set, which is the step-advance pass.
func ValidateValue(f Field, v string, form FormRecord, enforceRequired bool) string {
	if f.isEmpty(v) {
		if enforceRequired && f.Required {
			return f.requiredMessage()
		}
		return ""
	}
	if len(f.Options) > 0 && !f.hasOption(v) {
		return "Please select a valid " + strings.ToLower(f.Label)
	}
	for _, check := range f.Checks {
		if msg := check(v, form); msg != "" {
			return msg
		}
	}
	return ""
}

// ValidateStep re-checks every field owned by step, including required-ness,
// and returns the complete set of findings for that step only.
func ValidateStep(def *Definition, form FormRecord, step int) ErrorMap {
	errs := ErrorMap{}
	if step < 0 || step >= def.StepCount() {
		return errs
	}
	for _, f := range def.Steps[step].Fields {
		errs.set(f.Name, ValidateValue(f, form[f.Name], form, true))
	}
	return errs
}

// revalidate applies the incremental pass for one field: its previous error is
// cleared, and a new one is recorded only for a non-empty invalid value of a
// live field.
func revalidate(f Field, form FormRecord, errs ErrorMap) {
	delete(errs, f.Name)
	if !f.Live {
		return
	}
	errs.set(f.Name, ValidateValue(f, form[f.Name], form, false))
}

// normalise applies input constraints before a value is stored.
func normalise(f Field, v string) string {
	if f.Kind == KindCheckbox {
		return normaliseBool(v)
	}
	if f.MaxLength > 0 && utf8.RuneCountInString(v) > f.MaxLength {
		runes := []rune(v)
		v = string(runes[:f.MaxLength])
	}
	return v
}

func normaliseBool(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "on") || strings.EqualFold(v, "yes") {
		return "true"
	}
	if b, err := strconv.ParseBool(v); err == nil && b {
		return "true"
	}
	return "false"
}
