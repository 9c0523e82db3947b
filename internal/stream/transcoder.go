package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"
)

const stopTimeout = 5 * time.Second

// Transcoder turns a source feed into an HLS playlist written to a directory.
type Transcoder interface {
	// Start launches the conversion of source into outputDir/playlistName.
	// The returned Process outlives ctx; ctx only bounds the launch.
	Start(ctx context.Context, source, outputDir, playlistName string) (Process, error)
}

// Process is a running transcoder.
type Process interface {
	// Stop terminates the process and waits for it to exit.
	Stop() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed.
	Err() error
}

// FFmpegOptions configures FFmpegTranscoder.
type FFmpegOptions struct {
	// Path to the ffmpeg binary; looked up in PATH when not absolute.
	Path string
	// SegmentSeconds is -hls_time.
	SegmentSeconds int
	// ListSize is -hls_list_size.
	ListSize int
}

// FFmpegTranscoder runs ffmpeg as a child process pulling RTSP over TCP.
type FFmpegTranscoder struct {
	log  *slog.Logger
	path string
	opts FFmpegOptions
}

// NewFFmpegTranscoder resolves the ffmpeg binary.
func NewFFmpegTranscoder(log *slog.Logger, opts FFmpegOptions) (*FFmpegTranscoder, error) {
	if opts.Path == "" {
		opts.Path = "ffmpeg"
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 5
	}
	if opts.ListSize <= 0 {
		opts.ListSize = 3
	}

	path, err := exec.LookPath(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	return &FFmpegTranscoder{
		log:  log.With(slog.String("component", "ffmpeg")),
		path: path,
		opts: opts,
	}, nil
}

// UnavailableTranscoder fails every start with Err. The server runs with it
// when ffmpeg is missing so overlay endpoints keep working.
type UnavailableTranscoder struct {
	Err error
}

func (t UnavailableTranscoder) Start(context.Context, string, string, string) (Process, error) {
	return nil, t.Err
}

// Args builds the ffmpeg argument list.
func (t *FFmpegTranscoder) Args(source, outputDir, playlistName string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-rtsp_transport", "tcp",
		"-i", source,
		"-f", "hls",
		"-hls_time", strconv.Itoa(t.opts.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(t.opts.ListSize),
		"-hls_flags", "delete_segments",
		filepath.Join(outputDir, playlistName),
	}
}

// Start implements Transcoder.Start.
func (t *FFmpegTranscoder) Start(ctx context.Context, source, outputDir, playlistName string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := t.Args(source, outputDir, playlistName)
	cmd := exec.Command(t.path, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	t.log.Debug("executing ffmpeg", slog.Any("args", args))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &ffmpegProcess{cmd: cmd, done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.streamOutput(stderr)
	}()

	go func() {
		wg.Wait()
		p.err = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

func (t *FFmpegTranscoder) streamOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.log.Debug("ffmpeg", slog.String("line", scanner.Text()))
	}
}

type ffmpegProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

func (p *ffmpegProcess) Done() <-chan struct{} { return p.done }

func (p *ffmpegProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Stop sends SIGTERM so ffmpeg can finalise the playlist, and kills it if it
// has not exited within stopTimeout.
func (p *ffmpegProcess) Stop() error {
	var stopErr error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			stopErr = p.cmd.Process.Kill()
		}
		select {
		case <-p.done:
		case <-time.After(stopTimeout):
			stopErr = p.cmd.Process.Kill()
			<-p.done
		}
	})
	return stopErr
}
