// Package wizard implements the multi-step registration engine: field
// validation, the step controller and the submission effect. It knows nothing
// about rendering or transport.
package wizard

// FormRecord holds every field value of a wizard, flat, keyed by field name.
// Checkbox values are "true"/"false"; numbers keep their decimal text.
type FormRecord map[string]string

// Clone returns an independent copy.
func (f FormRecord) Clone() FormRecord {
	out := make(FormRecord, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Bool reports whether a checkbox field is ticked.
func (f FormRecord) Bool(name string) bool {
	return f[name] == "true"
}

// ErrorMap holds the current field-level validation failures. A key is present
// only while its field's last validation failed.
type ErrorMap map[string]string

// Clone returns an independent copy.
func (e ErrorMap) Clone() ErrorMap {
	out := make(ErrorMap, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Fields returns the failing field names in no particular order.
func (e ErrorMap) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	return out
}

func (e ErrorMap) set(name, msg string) {
	if msg == "" {
		delete(e, name)
		return
	}
	e[name] = msg
}
