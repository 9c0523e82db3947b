package stream

import (
	"context"
	"errors"
	"sync"
)

type fakeProcess struct {
	done    chan struct{}
	once    sync.Once
	stopped bool
	mu      sync.Mutex
}

func newFakeProcess() *fakeProcess { return &fakeProcess{done: make(chan struct{})} }

func (p *fakeProcess) Stop() error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.exit()
	return nil
}

func (p *fakeProcess) exit() { p.once.Do(func() { close(p.done) }) }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Err() error { return nil }

func (p *fakeProcess) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeTranscoder struct {
	mu      sync.Mutex
	procs   []*fakeProcess
	sources []string
	fail    bool
}

func (t *fakeTranscoder) Start(ctx context.Context, source, outputDir, playlistName string) (Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return nil, errors.New("exec: ffmpeg: not found")
	}
	p := newFakeProcess()
	t.procs = append(t.procs, p)
	t.sources = append(t.sources, source)
	return p, nil
}

func (t *fakeTranscoder) Procs() []*fakeProcess {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeProcess(nil), t.procs...)
}
