package studio

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlay"
)

// Handler exposes a Studio to the browser.
type Handler struct {
	studio *Studio
	log    *slog.Logger
}

func NewHandler(s *Studio, log *slog.Logger) *Handler {
	return &Handler{studio: s, log: log}
}

// Routes mounts the studio endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.State)
	r.Get("/ws", h.WebSocket)
	r.Route("/overlays", func(r chi.Router) {
		r.Post("/", h.AddOverlay)
		r.Post("/reload", h.Reload)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.DeleteOverlay)
			r.Post("/move", h.MoveOverlay)
			r.Post("/resize", h.ResizeOverlay)
			r.Post("/drag/start", h.BeginDrag)
			r.Post("/drag/update", h.UpdateDrag)
			r.Post("/drag/end", h.EndDrag)
		})
	})
	r.Route("/stream", func(r chi.Router) {
		r.Post("/start", h.StartStream)
		r.Post("/stop", h.StopStream)
	})
	r.Route("/playback", func(r chi.Router) {
		r.Post("/ready", h.PlaybackReady)
		r.Post("/error", h.PlaybackError)
	})
}

type viewResponse struct {
	envelope.Envelope
	View
}

type addRequest struct {
	Kind    string `json:"kind"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type addResponse struct {
	envelope.Envelope
	Added   bool             `json:"added"`
	Overlay *overlay.Overlay `json:"overlay,omitempty"`
}

type moveRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type startRequest struct {
	SourceURL string `json:"source_url"`
	RTSPURL   string `json:"rtsp_url"`
}

type errorReport struct {
	Message string `json:"message"`
}

// State handles GET /state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, http.StatusOK, "")
}

// WebSocket handles GET /ws. The connection receives a View on connect and
// after every change.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	h.studio.Hub().ServeWS(w, r, h.studio.View())
}

// AddOverlay handles POST /overlays. Body: {"kind":"text","content":"LIVE"}.
func (h *Handler) AddOverlay(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = req.Type
	}

	o, added, err := h.studio.AddOverlay(r.Context(), kind, req.Content)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	resp := addResponse{Envelope: envelope.Envelope{Success: true}, Added: added}
	if added {
		resp.Message = "Overlay created"
		resp.Overlay = &o
	}
	envelope.WriteJSON(w, http.StatusOK, resp)
}

// Reload handles POST /overlays/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.Reload(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeView(w, http.StatusOK, "Overlays reloaded")
}

// DeleteOverlay handles DELETE /overlays/{id}.
func (h *Handler) DeleteOverlay(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.DeleteOverlay(r.Context(), overlayID(r)); err != nil {
		h.writeFailure(w, err)
		return
	}
	envelope.WriteOK(w, http.StatusOK, "Overlay deleted")
}

// MoveOverlay handles POST /overlays/{id}/move. Body: {"dx":5,"dy":-3}.
// The move is applied immediately and persisted in the background, so the
// response is 202.
func (h *Handler) MoveOverlay(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.studio.MoveOverlay(overlayID(r), req.DX, req.DY)
	envelope.WriteOK(w, http.StatusAccepted, "")
}

// ResizeOverlay handles POST /overlays/{id}/resize. Body: {"width":100,"height":80}.
func (h *Handler) ResizeOverlay(w http.ResponseWriter, r *http.Request) {
	var req geometry.Size
	if !h.decode(w, r, &req) {
		return
	}
	h.studio.ResizeOverlay(overlayID(r), req.Width, req.Height)
	envelope.WriteOK(w, http.StatusAccepted, "")
}

// BeginDrag handles POST /overlays/{id}/drag/start. Body: pointer {"x":..,"y":..}.
func (h *Handler) BeginDrag(w http.ResponseWriter, r *http.Request) {
	var p geometry.Position
	if !h.decode(w, r, &p) {
		return
	}
	h.studio.BeginDrag(overlayID(r), p)
	envelope.WriteOK(w, http.StatusAccepted, "")
}

func (h *Handler) UpdateDrag(w http.ResponseWriter, r *http.Request) {
	var p geometry.Position
	if !h.decode(w, r, &p) {
		return
	}
	h.studio.UpdateDrag(overlayID(r), p)
	envelope.WriteOK(w, http.StatusAccepted, "")
}

func (h *Handler) EndDrag(w http.ResponseWriter, r *http.Request) {
	var p geometry.Position
	if !h.decode(w, r, &p) {
		return
	}
	h.studio.EndDrag(overlayID(r), p)
	envelope.WriteOK(w, http.StatusAccepted, "")
}

// StartStream handles POST /stream/start. Body: {"source_url":"rtsp://..."};
// "rtsp_url" is accepted as an alias.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	src := req.SourceURL
	if src == "" {
		src = req.RTSPURL
	}

	if err := h.studio.StartStream(r.Context(), src); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeView(w, http.StatusOK, MsgStreamStarted)
}

// StopStream handles POST /stream/stop.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.StopStream(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeView(w, http.StatusOK, MsgStreamStopped)
}

// PlaybackReady handles POST /playback/ready, sent by the browser on
// loadedmetadata.
func (h *Handler) PlaybackReady(w http.ResponseWriter, r *http.Request) {
	h.studio.PlaybackReady()
	envelope.WriteOK(w, http.StatusAccepted, "")
}

// PlaybackError handles POST /playback/error. Body: {"message":"..."}.
func (h *Handler) PlaybackError(w http.ResponseWriter, r *http.Request) {
	var req errorReport
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}
	h.studio.PlaybackFailed(req.Message)
	envelope.WriteOK(w, http.StatusAccepted, "")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid studio request body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) writeView(w http.ResponseWriter, status int, msg string) {
	envelope.WriteJSON(w, status, viewResponse{
		Envelope: envelope.Envelope{Success: true, Message: msg},
		View:     h.studio.View(),
	})
}

// writeFailure maps err to a status code and writes the operator message.
// Backend rejections and network failures are 502: the studio itself is fine.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, overlay.ErrInvalidKind), errors.Is(err, ErrSourceRequired):
		status = http.StatusBadRequest
	case envelope.IsNetwork(err), envelope.IsRejected(err):
		status = http.StatusBadGateway
	}
	envelope.WriteError(w, status, envelope.StatusMessage(err))
}

func overlayID(r *http.Request) overlay.ID {
	return overlay.ID(chi.URLParam(r, "id"))
}
