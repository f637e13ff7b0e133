package registration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/internal/wizard"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

// LoginPath is the default redirect once registration succeeds.
const LoginPath = "/login"

const maxBodyBytes = 64 << 10

// Handler serves the registration wizard over HTTP. Routes expect a
// {portal} URL parameter from the enclosing router.
type Handler struct {
	service   *Service
	logger    *logging.Logger
	loginPath string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLoginPath overrides the redirect returned after a successful submit.
func WithLoginPath(path string) HandlerOption {
	return func(h *Handler) {
		if path != "" {
			h.loginPath = path
		}
	}
}

func NewHandler(service *Service, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{service: service, logger: logger, loginPath: LoginPath}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the wizard endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/registration/definition", h.GetDefinition)
	r.Post("/registrations", h.Start)
	r.Route("/registrations/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Cancel)
		r.Put("/fields/{field}", h.SetField)
		r.Patch("/fields", h.SetFields)
		r.Post("/next", h.Next)
		r.Post("/back", h.Back)
		r.Post("/submit", h.Submit)
	})
}

type definitionView struct {
	Portal string        `json:"portal"`
	Name   string        `json:"name"`
	Steps  []wizard.Step `json:"steps"`
}

// SessionView is the client's picture of a wizard session.
type SessionView struct {
	ID         string            `json:"id"`
	Portal     string            `json:"portal"`
	Step       int               `json:"step"`
	StepCount  int               `json:"step_count"`
	StepLabel  string            `json:"step_label"`
	Fields     []wizard.Field    `json:"fields"`
	Values     map[string]string `json:"values"`
	Errors     map[string]string `json:"errors"`
	General    string            `json:"general,omitempty"`
	Status     wizard.Status     `json:"status"`
	AccountID  string            `json:"account_id,omitempty"`
	RedirectTo string            `json:"redirect_to,omitempty"`
}

func newSessionView(def *wizard.Definition, sess *Session, loginPath string) SessionView {
	st := sess.State
	values := make(map[string]string, len(st.Form))
	for k, v := range st.Form {
		values[k] = v
	}
	for _, name := range def.SensitiveFields() {
		delete(values, name)
	}
	errs := make(map[string]string, len(st.Errors))
	for k, v := range st.Errors {
		errs[k] = v
	}
	view := SessionView{
		ID:        sess.ID,
		Portal:    string(sess.Portal),
		Step:      st.Step,
		StepCount: def.StepCount(),
		Values:    values,
		Errors:    errs,
		General:   st.General,
		Status:    st.Status,
		AccountID: st.AccountID,
	}
	if st.Step >= 0 && st.Step < def.StepCount() {
		view.StepLabel = def.Steps[st.Step].Label
		view.Fields = def.Steps[st.Step].Fields
	}
	if st.Status == wizard.StatusSuccess {
		view.RedirectTo = loginPath
	}
	return view
}

// GetDefinition handles GET /api/{portal}/registration/definition.
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	def, err := h.service.Definition(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, definitionView{Portal: string(kind), Name: def.Name, Steps: def.Steps})
}

// Start handles POST /api/{portal}/registrations.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Start(r.Context(), kind)
	h.respond(w, r, kind, http.StatusCreated, sess, err)
}

// Get handles GET /api/{portal}/registrations/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Get(r.Context(), kind, chi.URLParam(r, "id"))
	h.respond(w, r, kind, http.StatusOK, sess, err)
}

// Cancel handles DELETE /api/{portal}/registrations/{id}.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setFieldRequest struct {
	Value json.RawMessage `json:"value"`
}

// SetField handles PUT /api/{portal}/registrations/{id}/fields/{field}.
func (h *Handler) SetField(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	var req setFieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value, err := scalar(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := h.service.SetField(r.Context(), kind, chi.URLParam(r, "id"), chi.URLParam(r, "field"), value)
	h.respond(w, r, kind, http.StatusOK, sess, err)
}

type setFieldsRequest struct {
	Fields map[string]json.RawMessage `json:"fields"`
}

// SetFields handles PATCH /api/{portal}/registrations/{id}/fields.
func (h *Handler) SetFields(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	var req setFieldsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required")
		return
	}
	values := make(map[string]string, len(req.Fields))
	for name, raw := range req.Fields {
		v, err := scalar(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", name, err))
			return
		}
		values[name] = v
	}
	sess, err := h.service.SetFields(r.Context(), kind, chi.URLParam(r, "id"), values)
	h.respond(w, r, kind, http.StatusOK, sess, err)
}

// Next handles POST /api/{portal}/registrations/{id}/next.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Next(r.Context(), kind, chi.URLParam(r, "id"))
	h.respond(w, r, kind, http.StatusOK, sess, err)
}

// Back handles POST /api/{portal}/registrations/{id}/back.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Back(r.Context(), kind, chi.URLParam(r, "id"))
	h.respond(w, r, kind, http.StatusOK, sess, err)
}

// Submit handles POST /api/{portal}/registrations/{id}/submit. A failed
// registration is a 200 with status "failure" and the banner in general.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.portal(w, r)
	if !ok {
		return
	}
	sess, err := h.service.Submit(r.Context(), kind, chi.URLParam(r, "id"))
	h.respond(w, r, kind, http.StatusOK, sess, err)
}

func (h *Handler) portal(w http.ResponseWriter, r *http.Request) (portal.Kind, bool) {
	kind, err := portal.ParseKind(chi.URLParam(r, "portal"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown portal")
		return "", false
	}
	return kind, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, kind portal.Kind, status int, sess *Session, err error) {
	if errors.Is(err, wizard.ErrStepInvalid) && sess != nil {
		def, defErr := h.service.Definition(kind)
		if defErr != nil {
			h.fail(w, r, defErr)
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, newSessionView(def, sess, h.loginPath))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	def, err := h.service.Definition(kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, newSessionView(def, sess, h.loginPath))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("registration request failed", "error", err, "path", r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrCompleted):
		return http.StatusGone
	case errors.Is(err, wizard.ErrFieldNotOnStep),
		errors.Is(err, wizard.ErrFirstStep),
		errors.Is(err, wizard.ErrLastStep),
		errors.Is(err, wizard.ErrNotLastStep),
		errors.Is(err, wizard.ErrSubmissionInFlight),
		errors.Is(err, ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrStepInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// scalar flattens a JSON value into the engine's string form. Numbers keep
// their literal text; booleans become "true" or "false"; null is empty.
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("value is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", errors.New("invalid value")
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", errors.New("value must be a string, number or boolean")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
