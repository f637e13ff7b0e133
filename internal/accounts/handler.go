package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/healthfirst-portals/internal/observability/metrics"
	"github.com/wolfman30/healthfirst-portals/internal/portal"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

type loginAuditor interface {
	LogLogin(ctx context.Context, portal, accountID string, ok, rememberMe bool, remoteAddr string) error
}

// LoginHandler serves POST /api/{portal}/login.
type LoginHandler struct {
	service *Service
	audit   loginAuditor
	metrics *metrics.RegistrationMetrics
	logger  *logging.Logger
}

func NewLoginHandler(service *Service, audit loginAuditor, m *metrics.RegistrationMetrics, logger *logging.Logger) *LoginHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LoginHandler{service: service, audit: audit, metrics: m, logger: logger}
}

type loginErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind, err := portal.ParseKind(chi.URLParam(r, "portal"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, loginErrorResponse{Error: "unknown portal"})
		return
	}
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.service.Login(r.Context(), kind, req)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, loginErrorResponse{Error: "invalid login form", Fields: verr.Fields})
		return
	case errors.Is(err, ErrInvalidCredentials):
		h.record(r, kind, "", false, req.RememberMe)
		writeJSON(w, http.StatusUnauthorized, loginErrorResponse{Error: MsgInvalidCredentials})
		return
	case err != nil:
		h.logger.Error("login failed", "error", err, "portal", kind)
		writeJSON(w, http.StatusInternalServerError, loginErrorResponse{Error: "internal error"})
		return
	}

	h.record(r, kind, res.AccountID, true, req.RememberMe)
	writeJSON(w, http.StatusOK, res)
}

func (h *LoginHandler) record(r *http.Request, kind portal.Kind, accountID string, ok, rememberMe bool) {
	h.metrics.ObserveLogin(string(kind), ok)
	if h.audit == nil {
		return
	}
	if err := h.audit.LogLogin(r.Context(), string(kind), accountID, ok, rememberMe, r.RemoteAddr); err != nil {
		h.logger.Error("audit log failed", "error", err, "portal", kind)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
