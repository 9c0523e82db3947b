package stream

import (
	"errors"
	"time"
)

// SessionID identifies one run of the transcoder.
type SessionID string

// Session describes the running transcoder.
type Session struct {
	ID          SessionID `json:"id"`
	Source      string    `json:"source_url"`
	PlaylistURL string    `json:"playlist_url"`
	StartedAt   time.Time `json:"started_at"`
}

// Segment is one media segment entry of an HLS media playlist.
type Segment struct {
	Sequence int64
	Duration float64
	Path     string
}

var (
	// ErrSourceRequired is returned when start is called without a source URL.
	ErrSourceRequired = errors.New("source URL is required")

	// ErrInvalidSource is returned for anything that is not an RTSP URL.
	ErrInvalidSource = errors.New("invalid RTSP URL")

	// ErrNotRunning is returned by Stop when no transcoder is running.
	ErrNotRunning = errors.New("no stream running")
)
