package playback

import (
	"errors"
	"fmt"
)

// HLSMimeType is what a surface is asked about before native playback.
const HLSMimeType = "application/vnd.apple.mpegurl"

// State is the lifecycle of a playback session.
type State int

const (
	Idle State = iota
	Attaching
	Playing
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attaching:
		return "attaching"
	case Playing:
		return "playing"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State appear by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Attaching, Playing, Error} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", b)
}

// Strategy records how the current session plays the playlist.
type Strategy string

const (
	StrategyNone     Strategy = ""
	StrategySoftware Strategy = "software"
	StrategyNative   Strategy = "native"
)

var (
	// ErrNoPlaybackStrategy means neither a software engine nor native HLS
	// support is available.
	ErrNoPlaybackStrategy = errors.New("no HLS playback strategy available")

	// ErrClosed is returned by SetPlaylist after Close.
	ErrClosed = errors.New("playback controller closed")
)

// EngineError is a failure raised by an Engine. Only fatal errors end the
// session.
type EngineError struct {
	Fatal   bool
	Details string
	Err     error
}

func (e *EngineError) Error() string {
	kind := "non-fatal"
	if e.Fatal {
		kind = "fatal"
	}
	if e.Err != nil {
		return fmt.Sprintf("playback engine %s error (%s): %v", kind, e.Details, e.Err)
	}
	return fmt.Sprintf("playback engine %s error (%s)", kind, e.Details)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Level is one rendition advertised by the manifest.
type Level struct {
	URL        string `json:"url"`
	Bandwidth  uint32 `json:"bandwidth,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Codecs     string `json:"codecs,omitempty"`
}

// Status is a copy of the controller's observable state.
type Status struct {
	State       State    `json:"state"`
	PlaylistURL string   `json:"playlist_url,omitempty"`
	Strategy    Strategy `json:"strategy,omitempty"`
	Levels      []Level  `json:"levels,omitempty"`
	Err         error    `json:"-"`
	Error       string   `json:"error,omitempty"`
}
