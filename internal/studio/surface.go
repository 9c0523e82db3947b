package studio

import (
	"sync"

	"overlay-studio/internal/playback"
)

// SurfaceState is what the browser's video element should be doing.
type SurfaceState struct {
	Source    string `json:"source,omitempty"`
	Playing   bool   `json:"playing"`
	NativeHLS bool   `json:"native_hls"`
}

// RemoteSurface is a playback.Surface rendered by a browser. The controller
// drives it through the Surface methods; the browser reports back through
// Report.
type RemoteSurface struct {
	mu        sync.Mutex
	state     SurfaceState
	listeners map[int]func(playback.SurfaceEvent)
	nextID    int
	onChange  func()
}

// NewRemoteSurface returns a surface. nativeHLS says whether the browser can
// play HLS without a software engine.
func NewRemoteSurface(nativeHLS bool) *RemoteSurface {
	return &RemoteSurface{
		state:     SurfaceState{NativeHLS: nativeHLS},
		listeners: make(map[int]func(playback.SurfaceEvent)),
	}
}

func (s *RemoteSurface) CanPlayType(mime string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.NativeHLS && mime == playback.HLSMimeType
}

func (s *RemoteSurface) SetSource(url string) {
	s.update(func(st *SurfaceState) {
		st.Source = url
		st.Playing = false
	})
}

func (s *RemoteSurface) Play() error {
	s.update(func(st *SurfaceState) { st.Playing = true })
	return nil
}

func (s *RemoteSurface) Pause() error {
	s.update(func(st *SurfaceState) { st.Playing = false })
	return nil
}

func (s *RemoteSurface) Reset() {
	s.update(func(st *SurfaceState) {
		st.Source = ""
		st.Playing = false
	})
}

func (s *RemoteSurface) Subscribe(fn func(playback.SurfaceEvent)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Report delivers a signal raised by the browser.
func (s *RemoteSurface) Report(ev playback.SurfaceEvent) {
	s.mu.Lock()
	fns := make([]func(playback.SurfaceEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *RemoteSurface) State() SurfaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RemoteSurface) setOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *RemoteSurface) update(fn func(*SurfaceState)) {
	s.mu.Lock()
	fn(&s.state)
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
}
