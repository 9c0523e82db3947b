package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"overlay-studio/internal/eventloop"
	"overlay-studio/internal/platform/logger"
	"overlay-studio/internal/platform/metrics"
)

// session is one attach of a playlist to the surface. Signals are tagged with
// gen and dropped once the session is released.
type session struct {
	gen           uint64
	engine        Engine
	cancelEngine  func()
	cancelSurface func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = logger.Component(log, "playback") }
}

// WithMetrics counts session errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithErrorHandler is called, off the controller lock, whenever a session
// enters Error.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// Controller binds a playlist URL to a Surface. At most one engine is alive
// per controller: the previous session is released before a new one starts.
type Controller struct {
	surface Surface
	factory EngineFactory
	log     *slog.Logger
	metrics *metrics.Metrics
	onError func(error)

	// signals delivers engine and surface events, error callbacks and status
	// notifications outside mu, in the order they were raised.
	signals *eventloop.Loop

	mu        sync.Mutex
	closed    bool
	gen       uint64
	sess      *session
	state     State
	url       string
	strategy  Strategy
	levels    []Level
	err       error
	listeners map[int]func(Status)
	nextID    int
}

// NewController returns an Idle controller. factory may be nil, in which case
// only native playback is attempted.
func NewController(surface Surface, factory EngineFactory, opts ...Option) *Controller {
	c := &Controller{
		surface:   surface,
		factory:   factory,
		log:       logger.Nop(),
		signals:   eventloop.New(),
		listeners: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPlaylist switches the surface to url. An empty url just releases the
// current session. Setting the URL that is already attaching or playing is a
// no-op; setting it again after an error retries.
func (c *Controller) SetPlaylist(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if url == c.url && (c.state == Attaching || c.state == Playing) {
		return nil
	}

	c.releaseLocked()
	c.url = url
	c.err = nil
	c.levels = nil
	c.strategy = StrategyNone
	if url == "" {
		c.state = Idle
		c.notifyLocked()
		return nil
	}

	c.gen++
	gen := c.gen
	s := &session{gen: gen}
	c.sess = s
	s.cancelSurface = c.surface.Subscribe(func(ev SurfaceEvent) {
		c.signals.Post(func() { c.handleSurfaceEvent(gen, ev) })
	})

	switch {
	case c.factory != nil && c.factory.Supported():
		e := c.factory.New()
		s.engine = e
		s.cancelEngine = e.Subscribe(func(ev EngineEvent) {
			c.signals.Post(func() { c.handleEngineEvent(gen, ev) })
		})
		c.strategy = StrategySoftware
		c.state = Attaching
		e.Attach(c.surface)
		e.LoadSource(url)
	case c.surface.CanPlayType(HLSMimeType):
		c.strategy = StrategyNative
		c.state = Attaching
		c.surface.SetSource(url)
	default:
		c.failLocked(ErrNoPlaybackStrategy)
		return ErrNoPlaybackStrategy
	}

	c.log.Info("playback session started",
		slog.String("playlist_url", url),
		slog.String("strategy", string(c.strategy)),
	)
	c.notifyLocked()
	return nil
}

// Close releases the session and stops signal delivery. The controller
// cannot be reused.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.releaseLocked()
	c.state = Idle
	c.url = ""
	c.strategy = StrategyNone
	c.levels = nil
	c.err = nil
	c.notifyLocked()
	c.mu.Unlock()

	c.signals.Close()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) PlaylistURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Err is the error that moved the session to Error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Levels returns the renditions of the current manifest.
func (c *Controller) Levels() []Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Level(nil), c.levels...)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Subscribe registers fn for status changes. fn runs on the controller's
// signal goroutine and may call back into the controller.
func (c *Controller) Subscribe(fn func(Status)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) handleEngineEvent(gen uint64, ev EngineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		c.log.Debug("dropping engine signal from released session", slog.Uint64("gen", gen))
		return
	}

	switch ev.Kind {
	case ManifestParsed:
		c.levels = append([]Level(nil), ev.Levels...)
		if c.state == Attaching {
			c.playLocked()
			return
		}
		c.notifyLocked()
	case LevelLoaded:
		c.log.Debug("level loaded",
			slog.Uint64("media_sequence", ev.MediaSequence),
			slog.Int("segments", ev.Segments),
			slog.Bool("ended", ev.Ended),
		)
	case EngineFailed:
		engErr := ev.Err
		if engErr == nil {
			engErr = &EngineError{Fatal: true, Details: "unknown"}
		}
		if !engErr.Fatal {
			c.log.Warn("playback engine error", slog.String("error", engErr.Error()))
			return
		}
		c.failLocked(engErr)
	}
}

func (c *Controller) handleSurfaceEvent(gen uint64, ev SurfaceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}

	switch ev.Kind {
	case MetadataLoaded:
		if c.strategy == StrategyNative && c.state == Attaching {
			c.playLocked()
		}
	case SurfaceError:
		err := ev.Err
		if err == nil {
			err = errors.New("unknown error")
		}
		c.failLocked(fmt.Errorf("video surface: %w", err))
	}
}

func (c *Controller) currentLocked(gen uint64) bool {
	return !c.closed && c.sess != nil && c.sess.gen == gen
}

func (c *Controller) playLocked() {
	if err := c.surface.Play(); err != nil {
		c.failLocked(fmt.Errorf("play: %w", err))
		return
	}
	c.state = Playing
	c.log.Info("playback started", slog.String("playlist_url", c.url))
	c.notifyLocked()
}

// failLocked releases the session and enters Error. The URL is kept so the
// operator can see what failed; no retry is attempted.
func (c *Controller) failLocked(err error) {
	c.releaseLocked()
	c.state = Error
	c.err = err
	c.log.Error("playback failed", slog.String("playlist_url", c.url), slog.String("error", err.Error()))
	if c.metrics != nil {
		c.metrics.IncPlaybackErrors()
	}
	if c.onError != nil {
		onError := c.onError
		c.signals.Post(func() { onError(err) })
	}
	c.notifyLocked()
}

// releaseLocked detaches and destroys the session's engine and resets the
// surface. It is a no-op without a session.
func (c *Controller) releaseLocked() {
	s := c.sess
	if s == nil {
		return
	}
	c.sess = nil

	if s.cancelSurface != nil {
		s.cancelSurface()
	}
	if s.engine != nil {
		if s.cancelEngine != nil {
			s.cancelEngine()
		}
		s.engine.Detach()
		s.engine.Destroy()
	}
	c.surface.Reset()
}

func (c *Controller) statusLocked() Status {
	st := Status{
		State:       c.state,
		PlaylistURL: c.url,
		Strategy:    c.strategy,
		Levels:      append([]Level(nil), c.levels...),
		Err:         c.err,
	}
	if c.err != nil {
		st.Error = c.err.Error()
	}
	return st
}

func (c *Controller) notifyLocked() {
	if len(c.listeners) == 0 {
		return
	}
	st := c.statusLocked()
	fns := make([]func(Status), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.signals.Post(func() {
		for _, fn := range fns {
			fn(st)
		}
	})
}
