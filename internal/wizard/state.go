package wizard

// Status tracks the registration submission lifecycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// State is the complete, explicit state of one wizard instance.
type State struct {
	Step   int        `json:"step"`
	Form   FormRecord `json:"form"`
	Errors ErrorMap   `json:"errors"`
	// General is the submission-level error shown as a banner.
	General   string `json:"general,omitempty"`
	Status    Status `json:"status"`
	AccountID string `json:"account_id,omitempty"`
}

// NewState returns the initial state: first step, every field at its default.
func NewState(def *Definition) State {
	return State{
		Step:   0,
		Form:   def.NewRecord(),
		Errors: ErrorMap{},
		Status: StatusIdle,
	}
}

// Clone returns a deep copy so reducers never share maps between states.
func (s State) Clone() State {
	out := s
	out.Form = s.Form.Clone()
	out.Errors = s.Errors.Clone()
	return out
}

// Completed reports whether registration succeeded and the wizard is done.
func (s State) Completed() bool {
	return s.Status == StatusSuccess
}

// Editable reports whether field edits and navigation are accepted.
func (s State) Editable() bool {
	return s.Status != StatusPending && s.Status != StatusSuccess
}
