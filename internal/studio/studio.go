// Package studio is the operator-facing side of the overlay studio: it owns
// the overlay compositor, the drag adapter and the playback controller for
// one video surface, and exposes them to a browser over HTTP and websocket.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"overlay-studio/internal/compositor"
	"overlay-studio/internal/drag"
	"overlay-studio/internal/envelope"
	"overlay-studio/internal/eventloop"
	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlay"
	"overlay-studio/internal/platform/logger"
	"overlay-studio/internal/platform/metrics"
	"overlay-studio/internal/playback"
)

// Operator status messages.
const (
	MsgStreamStarted = "Stream started!"
	MsgStreamStopped = "Stream stopped"
)

// ErrSourceRequired is returned by StartStream for a blank source URL.
var ErrSourceRequired = errors.New("source URL is required")

// StreamControl starts and stops the backend transcoder.
// client.StreamClient is the production implementation.
type StreamControl interface {
	Start(ctx context.Context, sourceURL string) (playlistURL string, err error)
	Stop(ctx context.Context) error
}

// OverlayView is an overlay as rendered, including drag feedback.
type OverlayView struct {
	overlay.Overlay
	Dragging bool    `json:"dragging"`
	Opacity  float64 `json:"opacity"`
}

// View is the full render state pushed to the browser.
type View struct {
	Overlays  []OverlayView   `json:"overlays"`
	Playback  playback.Status `json:"playback"`
	Surface   SurfaceState    `json:"surface"`
	SourceURL string          `json:"source_url,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// Studio owns the compositor, drag adapter and playback controller of one
// video surface.
type Studio struct {
	overlays *compositor.Compositor
	drags    *drag.Adapter
	player   *playback.Controller
	surface  *RemoteSurface
	streams  StreamControl
	hub      *Hub
	log      *slog.Logger

	// publish runs view broadcasts off the compositor loop and the
	// controller lock.
	publish *eventloop.Loop
	cancels []func()

	mu     sync.Mutex
	status string
	source string
}

// New builds a studio over the overlay store and stream control. engines may
// be nil to force native playback. m may be nil.
func New(store compositor.Store, engines playback.EngineFactory, surface *RemoteSurface, streams StreamControl, log *slog.Logger, m *metrics.Metrics) *Studio {
	s := &Studio{
		surface: surface,
		streams: streams,
		log:     logger.Component(log, "studio"),
		publish: eventloop.New(),
	}
	s.hub = NewHub(s.log)
	s.overlays = compositor.New(store,
		compositor.WithLogger(log),
		compositor.WithMetrics(m),
		compositor.WithErrorHandler(s.persistFailed),
	)
	s.drags = drag.New(s.overlays)
	s.player = playback.NewController(surface, engines,
		playback.WithLogger(log),
		playback.WithMetrics(m),
		playback.WithErrorHandler(s.playbackFailed),
	)

	s.cancels = append(s.cancels,
		s.overlays.Subscribe(func([]overlay.Overlay) { s.changed() }),
		s.player.Subscribe(func(playback.Status) { s.changed() }),
	)
	surface.setOnChange(s.changed)
	return s
}

// Close releases the playback session, waits for pending overlay updates
// and disconnects websocket clients.
func (s *Studio) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
	s.player.Close()
	s.overlays.Close()
	s.surface.setOnChange(nil)
	s.publish.Close()
	s.hub.Close()
}

// Hub exposes the websocket fan-out.
func (s *Studio) Hub() *Hub {
	return s.hub
}

// View assembles the current render state.
func (s *Studio) View() View {
	snap := s.overlays.Snapshot()
	views := make([]OverlayView, 0, len(snap))
	for _, o := range snap {
		views = append(views, OverlayView{
			Overlay:  o,
			Dragging: s.drags.Dragging(o.ID),
			Opacity:  s.drags.Opacity(o.ID),
		})
	}

	s.mu.Lock()
	status, source := s.status, s.source
	s.mu.Unlock()

	return View{
		Overlays:  views,
		Playback:  s.player.Status(),
		Surface:   s.surface.State(),
		SourceURL: source,
		Status:    status,
	}
}

// Status is the operator status line.
func (s *Studio) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartStream asks the backend to start transcoding source and points the
// video surface at the returned playlist.
func (s *Studio) StartStream(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		s.setStatus("Error: " + ErrSourceRequired.Error())
		return ErrSourceRequired
	}

	playlist, err := s.streams.Start(ctx, source)
	if err != nil {
		s.log.Warn("stream start failed", slog.String("source_url", source), slog.String("error", err.Error()))
		s.setStatus(envelope.StatusMessage(err))
		return err
	}

	s.mu.Lock()
	s.source = source
	s.status = MsgStreamStarted
	s.mu.Unlock()

	if err := s.player.SetPlaylist(playlist); err != nil {
		// The error handler has already put this on the status line.
		s.log.Warn("playback not started", slog.String("playlist_url", playlist), slog.String("error", err.Error()))
	}
	s.changed()
	return nil
}

// StopStream stops the backend transcoder and releases the video surface.
func (s *Studio) StopStream(ctx context.Context) error {
	if err := s.streams.Stop(ctx); err != nil {
		s.setStatus(envelope.StatusMessage(err))
		return err
	}
	s.player.SetPlaylist("")

	s.mu.Lock()
	s.source = ""
	s.status = MsgStreamStopped
	s.mu.Unlock()
	s.changed()
	return nil
}

// Reload reloads the overlay collection from the store.
func (s *Studio) Reload(ctx context.Context) error {
	if err := s.overlays.Initialize(ctx); err != nil {
		s.setStatus(envelope.StatusMessage(err))
		return err
	}
	return nil
}

// AddOverlay creates an overlay of the named kind. Blank content is ignored.
func (s *Studio) AddOverlay(ctx context.Context, kind, content string) (overlay.Overlay, bool, error) {
	k, err := overlay.ParseKind(kind)
	if err != nil {
		s.setStatus("Error: " + err.Error())
		return overlay.Overlay{}, false, err
	}
	o, added, err := s.overlays.AddOverlay(ctx, k, content)
	if err != nil {
		s.setStatus(envelope.StatusMessage(err))
		return overlay.Overlay{}, false, err
	}
	return o, added, nil
}

func (s *Studio) MoveOverlay(id overlay.ID, dx, dy float64) {
	s.overlays.MoveOverlay(id, dx, dy)
}

func (s *Studio) ResizeOverlay(id overlay.ID, width, height float64) {
	s.overlays.ResizeOverlay(id, width, height)
}

func (s *Studio) DeleteOverlay(ctx context.Context, id overlay.ID) error {
	if err := s.overlays.DeleteOverlay(ctx, id); err != nil {
		s.setStatus(envelope.StatusMessage(err))
		return err
	}
	return nil
}

func (s *Studio) BeginDrag(id overlay.ID, pointer geometry.Position) {
	s.drags.Begin(id, pointer)
	s.changed()
}

func (s *Studio) UpdateDrag(id overlay.ID, pointer geometry.Position) {
	s.drags.Update(id, pointer)
}

func (s *Studio) EndDrag(id overlay.ID, pointer geometry.Position) {
	s.drags.End(id, pointer)
	s.changed()
}

// PlaybackReady is reported by the browser once the video's metadata has
// loaded.
func (s *Studio) PlaybackReady() {
	s.surface.Report(playback.SurfaceEvent{Kind: playback.MetadataLoaded})
}

// PlaybackFailed is reported by the browser when the video element errors.
func (s *Studio) PlaybackFailed(reason string) {
	if reason == "" {
		reason = "video element error"
	}
	s.surface.Report(playback.SurfaceEvent{Kind: playback.SurfaceError, Err: errors.New(reason)})
}

// Flush waits until every view change raised so far has been broadcast.
func (s *Studio) Flush() {
	s.publish.Do(func() {})
}

// Player exposes the playback controller.
func (s *Studio) Player() *playback.Controller {
	return s.player
}

// Overlays exposes the compositor.
func (s *Studio) Overlays() *compositor.Compositor {
	return s.overlays
}

// persistFailed runs on the compositor loop.
func (s *Studio) persistFailed(op compositor.Op, id overlay.ID, err error) {
	s.setStatus(envelope.StatusMessage(err))
}

func (s *Studio) playbackFailed(err error) {
	s.setStatus("Error: " + err.Error())
}

func (s *Studio) setStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
	s.changed()
}

// changed schedules a broadcast. It never blocks, so it is safe from the
// compositor loop and from under the controller lock.
func (s *Studio) changed() {
	s.publish.Post(func() {
		if s.hub.Len() == 0 {
			return
		}
		s.hub.Broadcast(s.View())
	})
}
