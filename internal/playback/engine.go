package playback

// SurfaceEventKind names the signals a Surface raises.
type SurfaceEventKind int

const (
	// MetadataLoaded fires once the surface knows the media's dimensions and
	// duration.
	MetadataLoaded SurfaceEventKind = iota + 1
	// SurfaceError fires when the surface cannot decode or fetch the media.
	SurfaceError
)

// SurfaceEvent is delivered to Surface subscribers.
type SurfaceEvent struct {
	Kind SurfaceEventKind
	Err  error
}

// Surface is the rendering target for video. Implementations may invoke
// subscribers from any goroutine, including synchronously from SetSource.
type Surface interface {
	CanPlayType(mime string) bool
	SetSource(url string)
	Play() error
	Pause() error
	// Reset clears the source and stops any in-progress fetch.
	Reset()
	Subscribe(fn func(SurfaceEvent)) (cancel func())
}

// EngineEventKind names the signals an Engine raises.
type EngineEventKind int

const (
	// ManifestParsed fires once the master or media playlist was decoded.
	ManifestParsed EngineEventKind = iota + 1
	// LevelLoaded fires after each successful live playlist refresh.
	LevelLoaded
	// EngineFailed carries an *EngineError.
	EngineFailed
)

// EngineEvent is delivered to Engine subscribers.
type EngineEvent struct {
	Kind          EngineEventKind
	Levels        []Level
	MediaSequence uint64
	Segments      int
	Ended         bool
	Err           *EngineError
}

// Engine is a software HLS engine that feeds a Surface. One engine serves one
// playlist; it is discarded with Destroy and never reused.
type Engine interface {
	LoadSource(url string)
	Attach(s Surface)
	Detach()
	Destroy()
	Subscribe(fn func(EngineEvent)) (cancel func())
}

// EngineFactory reports whether the software engine can run here and builds
// new instances.
type EngineFactory interface {
	Supported() bool
	New() Engine
}
