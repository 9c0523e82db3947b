package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/grafov/m3u8"

	"overlay-studio/internal/platform/logger"
)

const (
	// DefaultMaxRefreshFailures is how many consecutive live reloads may fail
	// before the engine gives up.
	DefaultMaxRefreshFailures = 3

	defaultMinRefresh = 500 * time.Millisecond
	maxManifestBytes  = 8 << 20
)

// HLSEngineFactory builds HLSEngines that share one HTTP client.
type HLSEngineFactory struct {
	Client *http.Client
	Log    *slog.Logger
	// Disabled makes Supported report false so the controller falls back to
	// native playback.
	Disabled bool
	// RefreshInterval fixes the live reload period. Zero uses the playlist's
	// target duration.
	RefreshInterval time.Duration
	// MaxRefreshFailures defaults to DefaultMaxRefreshFailures.
	MaxRefreshFailures int
}

func (f *HLSEngineFactory) Supported() bool {
	return f != nil && !f.Disabled
}

func (f *HLSEngineFactory) New() Engine {
	return NewHLSEngine(f.Client, f.Log, f.RefreshInterval, f.MaxRefreshFailures)
}

// HLSEngine fetches and decodes HLS playlists, selects the first variant,
// points the attached surface at it and follows the live window.
type HLSEngine struct {
	client      *http.Client
	log         *slog.Logger
	refresh     time.Duration
	maxFailures int

	// feedMu is held across every surface write and every surface change,
	// so Detach and Destroy return only after an in-progress write.
	feedMu sync.Mutex

	mu        sync.Mutex
	surface   Surface
	selected  string
	cancel    context.CancelFunc
	destroyed bool
	listeners map[int]func(EngineEvent)
	nextID    int
	wg        sync.WaitGroup
}

// NewHLSEngine returns an engine. A nil client uses http.DefaultClient and a
// nil log discards output.
func NewHLSEngine(client *http.Client, log *slog.Logger, refresh time.Duration, maxFailures int) *HLSEngine {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Nop()
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxRefreshFailures
	}
	return &HLSEngine{
		client:      client,
		log:         logger.Component(log, "hls-engine"),
		refresh:     refresh,
		maxFailures: maxFailures,
		listeners:   make(map[int]func(EngineEvent)),
	}
}

// LoadSource starts loading src in the background, cancelling any earlier
// load.
func (e *HLSEngine) LoadSource(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx, src)
}

// Attach sets the surface to feed. If a rendition is already selected the
// surface is pointed at it straight away.
func (e *HLSEngine) Attach(s Surface) {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.surface = s
	selected := e.selected
	e.mu.Unlock()

	if s != nil && selected != "" {
		s.SetSource(selected)
	}
}

// Detach stops feeding the surface. A write already in progress completes
// before Detach returns; none starts afterwards.
func (e *HLSEngine) Detach() {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	e.surface = nil
	e.mu.Unlock()
}

// Destroy cancels all engine work and drops subscribers. Like Detach it waits
// for an in-progress surface write, but not for the loader goroutine; see Wait.
func (e *HLSEngine) Destroy() {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
	if e.cancel != nil {
		e.cancel()
	}
	e.surface = nil
	e.listeners = make(map[int]func(EngineEvent))
}

// Wait blocks until the loader goroutines have exited.
func (e *HLSEngine) Wait() {
	e.wg.Wait()
}

func (e *HLSEngine) Subscribe(fn func(EngineEvent)) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *HLSEngine) run(ctx context.Context, src string) {
	defer e.wg.Done()

	pl, listType, err := e.fetch(ctx, src)
	if err != nil {
		if ctx.Err() == nil {
			e.emit(ctx, EngineEvent{Kind: EngineFailed, Err: &EngineError{Fatal: true, Details: "manifestLoadError", Err: err}})
		}
		return
	}

	var (
		levels []Level
		media  *m3u8.MediaPlaylist
	)
	switch listType {
	case m3u8.MASTER:
		levels, err = masterLevels(src, pl.(*m3u8.MasterPlaylist))
		if err != nil {
			e.emit(ctx, EngineEvent{Kind: EngineFailed, Err: &EngineError{Fatal: true, Details: "manifestParsingError", Err: err}})
			return
		}
	case m3u8.MEDIA:
		media = pl.(*m3u8.MediaPlaylist)
		levels = []Level{{URL: src}}
	default:
		e.emit(ctx, EngineEvent{Kind: EngineFailed, Err: &EngineError{Fatal: true, Details: "manifestParsingError", Err: errors.New("unknown playlist type")}})
		return
	}

	// The surface has its source before anyone is told to play it.
	mediaURL := levels[0].URL
	e.feed(ctx, mediaURL)
	e.emit(ctx, EngineEvent{Kind: ManifestParsed, Levels: levels})
	e.follow(ctx, mediaURL, media)
}

// follow reloads the media playlist until it ends, the engine is destroyed or
// maxFailures reloads in a row fail. A nil media means the playlist has not
// been fetched yet.
func (e *HLSEngine) follow(ctx context.Context, mediaURL string, media *m3u8.MediaPlaylist) {
	var (
		failures int
		wait     time.Duration
	)
	for {
		if media != nil {
			e.emit(ctx, EngineEvent{
				Kind:          LevelLoaded,
				MediaSequence: media.SeqNo,
				Segments:      int(media.Count()),
				Ended:         media.Closed,
			})
			if media.Closed {
				return
			}
			wait = e.interval(media)
		}

		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}

		next, err := e.fetchMedia(ctx, mediaURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			fatal := failures >= e.maxFailures
			e.emit(ctx, EngineEvent{Kind: EngineFailed, Err: &EngineError{Fatal: fatal, Details: "levelLoadError", Err: err}})
			if fatal {
				return
			}
			media = nil
			wait = max(wait, e.minWait())
			continue
		}
		failures = 0
		media = next
	}
}

func (e *HLSEngine) interval(media *m3u8.MediaPlaylist) time.Duration {
	if e.refresh > 0 {
		return e.refresh
	}
	return max(time.Duration(media.TargetDuration*float64(time.Second)), defaultMinRefresh)
}

func (e *HLSEngine) minWait() time.Duration {
	if e.refresh > 0 {
		return e.refresh
	}
	return defaultMinRefresh
}

func (e *HLSEngine) fetchMedia(ctx context.Context, mediaURL string) (*m3u8.MediaPlaylist, error) {
	pl, listType, err := e.fetch(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%s is not a media playlist", mediaURL)
	}
	return pl.(*m3u8.MediaPlaylist), nil
}

func (e *HLSEngine) fetch(ctx context.Context, src string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("GET %s: %s", src, resp.Status)
	}
	pl, listType, err := m3u8.DecodeFrom(io.LimitReader(resp.Body, maxManifestBytes), false)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", src, err)
	}
	return pl, listType, nil
}

// feed points the attached surface at the selected rendition.
func (e *HLSEngine) feed(ctx context.Context, mediaURL string) {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	e.selected = mediaURL
	s := e.surface
	destroyed := e.destroyed
	e.mu.Unlock()
	if s == nil || destroyed || ctx.Err() != nil {
		return
	}
	s.SetSource(mediaURL)
}

func (e *HLSEngine) emit(ctx context.Context, ev EngineEvent) {
	if ctx.Err() != nil {
		return
	}
	e.mu.Lock()
	fns := make([]func(EngineEvent), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	if ev.Kind == EngineFailed {
		e.log.Debug("engine error", slog.String("error", ev.Err.Error()))
	}
	for _, fn := range fns {
		fn(ev)
	}
}

// masterLevels lists the variants of a master playlist with absolute URLs.
func masterLevels(src string, master *m3u8.MasterPlaylist) ([]Level, error) {
	base, err := url.Parse(src)
	if err != nil {
		return nil, err
	}
	levels := make([]Level, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		ref, err := url.Parse(v.URI)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", v.URI, err)
		}
		levels = append(levels, Level{
			URL:        base.ResolveReference(ref).String(),
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			Codecs:     v.Codecs,
		})
	}
	if len(levels) == 0 {
		return nil, errors.New("master playlist has no variants")
	}
	return levels, nil
}
