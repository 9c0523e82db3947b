package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/platform/metrics"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

// Handler exposes the stream control endpoints and serves the HLS output.
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

// startRequest accepts "rtsp_url" as an alias of "source_url" for older clients.
type startRequest struct {
	SourceURL string `json:"source_url"`
	RTSPURL   string `json:"rtsp_url"`
}

type startResponse struct {
	envelope.Envelope
	PlaylistURL string    `json:"playlist_url"`
	SessionID   SessionID `json:"session_id"`
}

type statusResponse struct {
	envelope.Envelope
	Running bool     `json:"running"`
	Session *Session `json:"session,omitempty"`
}

// Start handles POST /api/stream/start.
// Body: { "source_url": "rtsp://camera/stream" }.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusBadRequest, ErrSourceRequired.Error())
		return
	}
	source := req.SourceURL
	if source == "" {
		source = req.RTSPURL
	}

	sess, err := h.svc.Start(r.Context(), source)
	if err != nil {
		switch {
		case errors.Is(err, ErrSourceRequired), errors.Is(err, ErrInvalidSource):
			envelope.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("start stream failed", slog.String("error", err.Error()))
			envelope.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	envelope.WriteJSON(w, http.StatusOK, startResponse{
		Envelope:    envelope.Envelope{Success: true, Message: "Stream started"},
		PlaylistURL: sess.PlaylistURL,
		SessionID:   sess.ID,
	})
	if h.metrics != nil {
		h.metrics.IncStreamStarts()
	}
}

// Stop handles POST /api/stream/stop.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Stop(); err != nil {
		if errors.Is(err, ErrNotRunning) {
			envelope.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("stop stream failed", slog.String("error", err.Error()))
		envelope.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	envelope.WriteOK(w, http.StatusOK, "Stream stopped")
	if h.metrics != nil {
		h.metrics.IncStreamStops()
	}
}

// Status handles GET /api/stream/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Envelope: envelope.Envelope{Success: true}}
	if sess, ok := h.svc.Current(); ok {
		resp.Running = true
		resp.Session = &sess
	}
	envelope.WriteJSON(w, http.StatusOK, resp)
}

// Files serves the transcoder output directory. Mount it under the public
// prefix with the prefix stripped. While a stream is running and ffmpeg has
// not written the playlist yet, an empty live playlist is returned so players
// keep polling instead of failing on a 404.
func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || name == "." {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Players in the studio page fetch media from another origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch path.Ext(name) {
	case ".m3u8":
		w.Header().Set("Content-Type", playlistContentType)
		w.Header().Set("Cache-Control", "no-cache")
	case ".ts":
		w.Header().Set("Content-Type", segmentContentType)
	}

	full := filepath.Join(h.svc.OutputDir(), filepath.FromSlash(name))
	if _, err := os.Stat(full); err != nil {
		if name == h.svc.PlaylistName() && h.svc.ActiveCount() > 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(BuildLivePlaylist(nil, false)))
			return
		}
		w.Header().Del("Content-Type")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, full)
}
