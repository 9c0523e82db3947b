package overlay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/geometry"
	"overlay-studio/internal/platform/metrics"
)

// Handler exposes the overlay persistence endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

type listResponse struct {
	envelope.Envelope
	Overlays []Overlay `json:"overlays"`
}

type createResponse struct {
	envelope.Envelope
	Overlay Overlay `json:"overlay"`
}

// createRequest accepts "type" as an alias of "kind" for older clients.
type createRequest struct {
	Kind     string             `json:"kind"`
	Type     string             `json:"type"`
	Content  string             `json:"content"`
	Position *geometry.Position `json:"position"`
	Size     *geometry.Size     `json:"size"`
}

// List handles GET /api/overlays.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	overlays, err := h.svc.List(r.Context())
	if err != nil {
		h.log.Error("list overlays failed", slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	envelope.WriteJSON(w, http.StatusOK, listResponse{
		Envelope: envelope.Envelope{Success: true},
		Overlays: overlays,
	})
}

// Create handles POST /api/overlays.
// Body: { "kind": "text", "content": "Hi", "position": {"x":50,"y":50}, "size": {"width":0,"height":20} }.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid overlay body", slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = req.Type
	}

	o, err := h.svc.Create(r.Context(), Draft{
		Kind:     Kind(kind),
		Content:  req.Content,
		Position: req.Position,
		Size:     req.Size,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrEmptyContent):
			envelope.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("create overlay failed", slog.String("error", err.Error()))
			envelope.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.log.Debug("overlay created",
		slog.String("id", string(o.ID)),
		slog.String("kind", string(o.Kind)))
	envelope.WriteJSON(w, http.StatusCreated, createResponse{
		Envelope: envelope.Envelope{Success: true, Message: "Overlay created"},
		Overlay:  o,
	})
	if h.metrics != nil {
		h.metrics.IncOverlaysCreated()
	}
}

// Update handles PUT /api/overlays/{id}. Body carries any of position, size, content.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "id"))
	if id == "" {
		envelope.WriteError(w, http.StatusBadRequest, "overlay id is required")
		return
	}

	var p Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.log.Debug("invalid patch body", slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.svc.Update(r.Context(), id, p); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			envelope.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrEmptyPatch):
			envelope.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("update overlay failed", slog.String("id", string(id)), slog.String("error", err.Error()))
			envelope.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	envelope.WriteOK(w, http.StatusOK, "Overlay updated")
	if h.metrics != nil {
		h.metrics.IncOverlayUpdates()
	}
}

// Delete handles DELETE /api/overlays/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := ID(chi.URLParam(r, "id"))
	if id == "" {
		envelope.WriteError(w, http.StatusBadRequest, "overlay id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			envelope.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("delete overlay failed", slog.String("id", string(id)), slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.Info("overlay deleted", slog.String("id", string(id)))
	envelope.WriteOK(w, http.StatusOK, "Overlay deleted")
	if h.metrics != nil {
		h.metrics.IncOverlaysDeleted()
	}
}
