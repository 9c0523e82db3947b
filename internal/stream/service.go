package stream

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPlaylistName is the playlist file the transcoder writes.
const DefaultPlaylistName = "output.m3u8"

// Service runs at most one transcoder at a time.
type Service struct {
	mu           sync.Mutex
	transcoder   Transcoder
	outputDir    string
	publicPrefix string
	playlistName string
	log          *slog.Logger

	current *running
}

type running struct {
	session Session
	proc    Process
}

// NewService returns a Service writing into outputDir. publicPrefix is the
// URL path under which outputDir is served (e.g. "/stream").
func NewService(t Transcoder, outputDir, publicPrefix string, log *slog.Logger) *Service {
	if publicPrefix == "" {
		publicPrefix = "/stream"
	}
	return &Service{
		transcoder:   t,
		outputDir:    outputDir,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
		playlistName: DefaultPlaylistName,
		log:          log,
	}
}

// ValidateSource checks the source is an RTSP URL.
func ValidateSource(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return ErrSourceRequired
	}
	lower := strings.ToLower(source)
	if !strings.HasPrefix(lower, "rtsp://") && !strings.HasPrefix(lower, "rtsps://") {
		return ErrInvalidSource
	}
	return nil
}

// PlaylistURL is the public path of the playlist.
func (s *Service) PlaylistURL() string {
	return path.Join(s.publicPrefix, s.playlistName)
}

// PlaylistName is the playlist file name inside the output directory.
func (s *Service) PlaylistName() string {
	return s.playlistName
}

// OutputDir is the directory segments and the playlist are written to.
func (s *Service) OutputDir() string {
	return s.outputDir
}

// Start validates source, stops any running transcoder, clears the output
// directory and launches a new transcoder.
func (s *Service) Start(ctx context.Context, source string) (Session, error) {
	if err := ValidateSource(source); err != nil {
		return Session{}, err
	}
	source = strings.TrimSpace(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		prev := s.current
		s.current = nil
		s.log.Info("stopping previous stream before restart", slog.String("session_id", string(prev.session.ID)))
		if err := prev.proc.Stop(); err != nil {
			s.log.Warn("previous transcoder did not stop cleanly", slog.String("error", err.Error()))
		}
	}

	if err := s.prepareOutputDir(); err != nil {
		return Session{}, err
	}

	proc, err := s.transcoder.Start(ctx, source, s.outputDir, s.playlistName)
	if err != nil {
		return Session{}, fmt.Errorf("start transcoder: %w", err)
	}

	r := &running{
		session: Session{
			ID:          SessionID(uuid.NewString()),
			Source:      source,
			PlaylistURL: s.PlaylistURL(),
			StartedAt:   time.Now().UTC(),
		},
		proc: proc,
	}
	s.current = r
	go s.watch(r)

	s.log.Info("stream started",
		slog.String("session_id", string(r.session.ID)),
		slog.String("source", source))
	return r.session, nil
}

// Stop terminates the running transcoder.
func (s *Service) Stop() error {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()

	if r == nil {
		return ErrNotRunning
	}
	if err := r.proc.Stop(); err != nil {
		return fmt.Errorf("stop transcoder: %w", err)
	}
	s.log.Info("stream stopped", slog.String("session_id", string(r.session.ID)))
	return nil
}

// Current returns the running session, if any.
func (s *Service) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}, false
	}
	return s.current.session, true
}

// ActiveCount is 1 while a transcoder runs. Used for metrics.
func (s *Service) ActiveCount() int {
	if _, ok := s.Current(); ok {
		return 1
	}
	return 0
}

// watch clears the session when the process exits on its own.
func (s *Service) watch(r *running) {
	<-r.proc.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r {
		return
	}
	s.current = nil

	attrs := []any{slog.String("session_id", string(r.session.ID))}
	if err := r.proc.Err(); err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.log.Warn("transcoder exited", attrs...)
}

// prepareOutputDir creates the directory and removes files of the previous run.
func (s *Service) prepareOutputDir() error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.outputDir, e.Name())); err != nil {
			return fmt.Errorf("clear output dir: %w", err)
		}
	}
	return nil
}
