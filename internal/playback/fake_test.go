package playback

import (
	"slices"
	"sync"
	"testing"
)

type fakeSurface struct {
	mu        sync.Mutex
	canPlay   bool
	playErr   error
	src       string
	sources   []string
	plays     int
	resets    int
	listeners map[int]func(SurfaceEvent)
	nextID    int
}

func newFakeSurface(canPlay bool) *fakeSurface {
	return &fakeSurface{canPlay: canPlay, listeners: make(map[int]func(SurfaceEvent))}
}

func (s *fakeSurface) CanPlayType(mime string) bool {
	return s.canPlay && mime == HLSMimeType
}

func (s *fakeSurface) SetSource(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = url
	s.sources = append(s.sources, url)
}

func (s *fakeSurface) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return s.playErr
}

func (s *fakeSurface) Pause() error { return nil }

func (s *fakeSurface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = ""
	s.resets++
}

func (s *fakeSurface) Subscribe(fn func(SurfaceEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *fakeSurface) emit(ev SurfaceEvent) {
	s.mu.Lock()
	fns := make([]func(SurfaceEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *fakeSurface) source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

func (s *fakeSurface) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

type fakeEngine struct {
	mu        sync.Mutex
	url       string
	surface   Surface
	detached  bool
	destroyed bool
	// all keeps every subscriber, including cancelled ones, so tests can
	// deliver late signals.
	all       []func(EngineEvent)
	listeners map[int]func(EngineEvent)
}

func (e *fakeEngine) LoadSource(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.url = url
}

func (e *fakeEngine) Attach(s Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface = s
}

func (e *fakeEngine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface = nil
	e.detached = true
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

func (e *fakeEngine) Subscribe(fn func(EngineEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]func(EngineEvent))
	}
	id := len(e.all)
	e.all = append(e.all, fn)
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *fakeEngine) emit(ev EngineEvent) {
	e.mu.Lock()
	fns := make([]func(EngineEvent), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (e *fakeEngine) emitStale(ev EngineEvent) {
	e.mu.Lock()
	fns := slices.Clone(e.all)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (e *fakeEngine) isLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.destroyed
}

func (e *fakeEngine) attachedTo() (string, Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url, e.surface
}

type fakeFactory struct {
	mu        sync.Mutex
	supported bool
	engines   []*fakeEngine
}

func (f *fakeFactory) Supported() bool { return f.supported }

func (f *fakeFactory) New() Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{}
	f.engines = append(f.engines, e)
	return e
}

func (f *fakeFactory) live() []*fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeEngine
	for _, e := range f.engines {
		if e.isLive() {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeFactory) last(t *testing.T) *fakeEngine {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		t.Fatal("no engine created")
	}
	return f.engines[len(f.engines)-1]
}

// settle waits until every signal posted so far, and anything those signals
// posted in turn, has been handled.
func settle(c *Controller) {
	for i := 0; i < 3; i++ {
		c.signals.Do(func() {})
	}
}
