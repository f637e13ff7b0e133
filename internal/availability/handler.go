package availability

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/healthfirst-portals/internal/http/middleware"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Handler serves a provider's own availability. Mount it behind
// middleware.ProviderAuth.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the slot endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{slotID}", h.Update)
	r.Delete("/{slotID}", h.Delete)
}

type listResponse struct {
	Slots            []Slot   `json:"slots"`
	AppointmentTypes []string `json:"appointment_types"`
	LocationTypes    []string `json:"location_types"`
}

// List handles GET /api/provider/availability?from=&to=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	slots, err := h.service.List(r.Context(), providerID, q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Slots: slots, AppointmentTypes: AppointmentTypes, LocationTypes: LocationTypes})
}

// Create handles POST /api/provider/availability.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerID(w, r)
	if !ok {
		return
	}
	var in SlotInput
	if !decodeSlot(w, r, &in) {
		return
	}
	slot, err := h.service.Add(r.Context(), providerID, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

// Update handles PUT /api/provider/availability/{slotID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerID(w, r)
	if !ok {
		return
	}
	id, ok := slotID(w, r)
	if !ok {
		return
	}
	var in SlotInput
	if !decodeSlot(w, r, &in) {
		return
	}
	slot, err := h.service.Update(r.Context(), providerID, id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

// Delete handles DELETE /api/provider/availability/{slotID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerID(w, r)
	if !ok {
		return
	}
	id, ok := slotID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), providerID, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func providerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ProviderFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return claims.Subject, true
}

// slotID answers 404 for anything that cannot be a slot ID.
func slotID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "slot not found"})
		return "", false
	}
	return id.String(), true
}

func decodeSlot(w http.ResponseWriter, r *http.Request, in *SlotInput) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid slot", "fields": verr.Fields})
	case errors.Is(err, ErrInvalidRange):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "slot not found"})
	case errors.Is(err, ErrOverlap):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "This time overlaps another availability slot"})
	default:
		h.logger.Error("availability request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
