// Package compositor keeps the in-memory overlay collection drawn above the
// video. Local state changes first and persistence follows: moves and resizes
// are applied optimistically and never rolled back, while creates and deletes
// only touch local state once the store has accepted them.
//
// All collection state is owned by one event-loop goroutine. Store calls run
// on the caller's goroutine (create, delete, list) or on a background
// goroutine (update) and post their results back into the loop.
package compositor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"overlay-studio/internal/eventloop"
	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlay"
	"overlay-studio/internal/platform/logger"
	"overlay-studio/internal/platform/metrics"
)

// DefaultPosition is where new overlays are placed.
var DefaultPosition = geometry.Position{X: 50, Y: 50}

// ErrClosed is returned by operations after Close.
var ErrClosed = errors.New("compositor closed")

// Op names the store call that failed.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Store is the overlay persistence the compositor talks to.
// client.OverlayClient is the production implementation.
type Store interface {
	List(ctx context.Context) ([]overlay.Overlay, error)
	Create(ctx context.Context, d overlay.Draft) (overlay.Overlay, error)
	Update(ctx context.Context, id overlay.ID, p overlay.Patch) error
	Delete(ctx context.Context, id overlay.ID) error
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithErrorHandler receives background update failures. It runs on the
// compositor's loop and must not call back into the compositor.
func WithErrorHandler(fn func(op Op, id overlay.ID, err error)) Option {
	return func(c *Compositor) { c.onError = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Compositor) { c.log = logger.Component(log, "compositor") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Compositor) { c.metrics = m }
}

// Compositor is the overlay collection plus its persistence policy.
type Compositor struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
	onError func(Op, overlay.ID, error)

	loop *eventloop.Loop

	// Owned by loop.
	order     []overlay.ID
	items     map[overlay.ID]overlay.Overlay
	listeners map[int]func([]overlay.Overlay)
	nextID    int
	pending   int
	idle      []chan struct{}
	closing   bool
}

// New returns an empty compositor backed by store.
func New(store Store, opts ...Option) *Compositor {
	c := &Compositor{
		store:     store,
		log:       logger.Nop(),
		loop:      eventloop.New(),
		items:     make(map[overlay.ID]overlay.Overlay),
		listeners: make(map[int]func([]overlay.Overlay)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize replaces the collection with the store's list. On failure the
// collection is left empty.
func (c *Compositor) Initialize(ctx context.Context) error {
	list, err := c.store.List(ctx)
	if err != nil {
		c.countFailure(OpList)
		c.log.Error("failed to load overlays", slog.String("error", err.Error()))
		if !c.loop.Do(func() { c.replace(nil) }) {
			return ErrClosed
		}
		return fmt.Errorf("load overlays: %w", err)
	}
	if !c.loop.Do(func() { c.replace(list) }) {
		return ErrClosed
	}
	c.log.Info("overlays loaded", slog.Int("count", len(list)))
	return nil
}

// AddOverlay creates an overlay at DefaultPosition with the kind's default
// size. Blank content is ignored and reports added=false with a nil error.
// The overlay appears locally only after the store returns it.
func (c *Compositor) AddOverlay(ctx context.Context, kind overlay.Kind, content string) (o overlay.Overlay, added bool, err error) {
	if strings.TrimSpace(content) == "" {
		return overlay.Overlay{}, false, nil
	}

	pos := DefaultPosition
	size := kind.DefaultSize()
	created, err := c.store.Create(ctx, overlay.Draft{
		Kind:     kind,
		Content:  content,
		Position: &pos,
		Size:     &size,
	})
	if err != nil {
		c.countFailure(OpCreate)
		c.log.Error("failed to add overlay", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return overlay.Overlay{}, false, fmt.Errorf("add overlay: %w", err)
	}

	if !c.loop.Do(func() {
		c.upsert(created)
		c.notify()
	}) {
		return created, false, ErrClosed
	}
	c.log.Debug("overlay added", slog.String("id", string(created.ID)))
	return created, true, nil
}

// MoveOverlay shifts the overlay by (dx, dy) locally and then persists the
// new position in the background. Unknown ids are ignored.
func (c *Compositor) MoveOverlay(id overlay.ID, dx, dy float64) {
	var (
		pos geometry.Position
		ok  bool
	)
	c.loop.Do(func() {
		o, found := c.items[id]
		if !found || c.closing {
			return
		}
		o.Position = geometry.ApplyDelta(o.Position, dx, dy)
		c.items[id] = o
		pos, ok = o.Position, true
		c.pending++
		c.notify()
	})
	if ok {
		c.persist(id, overlay.Patch{Position: &pos})
	}
}

// ResizeOverlay sets the overlay's size locally and then persists it in the
// background. Text overlays only take the height, their font scale. Unknown
// ids are ignored.
func (c *Compositor) ResizeOverlay(id overlay.ID, width, height float64) {
	var (
		size geometry.Size
		ok   bool
	)
	c.loop.Do(func() {
		o, found := c.items[id]
		if !found || c.closing {
			return
		}
		size = geometry.Size{Width: width, Height: height}
		if o.Kind == overlay.KindText {
			size.Width = o.Size.Width
		}
		o.Size = size
		c.items[id] = o
		ok = true
		c.pending++
		c.notify()
	})
	if ok {
		c.persist(id, overlay.Patch{Size: &size})
	}
}

// DeleteOverlay removes the overlay from the store and, on success, from the
// collection.
func (c *Compositor) DeleteOverlay(ctx context.Context, id overlay.ID) error {
	if err := c.store.Delete(ctx, id); err != nil {
		c.countFailure(OpDelete)
		c.log.Error("failed to delete overlay", slog.String("id", string(id)), slog.String("error", err.Error()))
		return fmt.Errorf("delete overlay %s: %w", id, err)
	}
	if !c.loop.Do(func() {
		if c.remove(id) {
			c.notify()
		}
	}) {
		return ErrClosed
	}
	return nil
}

// Snapshot returns the collection in insertion order.
func (c *Compositor) Snapshot() []overlay.Overlay {
	var out []overlay.Overlay
	c.loop.Do(func() { out = c.snapshot() })
	return out
}

func (c *Compositor) Get(id overlay.ID) (overlay.Overlay, bool) {
	var (
		o  overlay.Overlay
		ok bool
	)
	c.loop.Do(func() { o, ok = c.items[id] })
	return o, ok
}

func (c *Compositor) Len() int {
	var n int
	c.loop.Do(func() { n = len(c.order) })
	return n
}

// Subscribe registers fn to receive a snapshot after every change. fn runs on
// the compositor's loop and must not call back into the compositor.
func (c *Compositor) Subscribe(fn func([]overlay.Overlay)) (cancel func()) {
	var id int
	c.loop.Do(func() {
		id = c.nextID
		c.nextID++
		c.listeners[id] = fn
	})
	return func() {
		c.loop.Post(func() { delete(c.listeners, id) })
	}
}

// Drain waits for background updates issued so far and for their failure
// reports to be delivered.
func (c *Compositor) Drain() {
	c.waitIdle(false)
}

// Close stops accepting moves and resizes, waits for background updates and
// stops the loop.
func (c *Compositor) Close() {
	c.waitIdle(true)
	c.loop.Close()
}

// waitIdle blocks until no update is pending. With stop set, no new update
// is started once it returns.
func (c *Compositor) waitIdle(stop bool) {
	var ch chan struct{}
	c.loop.Do(func() {
		if stop {
			c.closing = true
		}
		if c.pending == 0 {
			return
		}
		ch = make(chan struct{})
		c.idle = append(c.idle, ch)
	})
	if ch != nil {
		<-ch
	}
}

// persist sends p in the background. The caller has already counted it in
// pending on the loop; completion is counted back on the loop too, so Close
// never closes the loop under a running update.
func (c *Compositor) persist(id overlay.ID, p overlay.Patch) {
	go func() {
		err := c.store.Update(context.Background(), id, p)
		c.loop.Post(func() {
			if err != nil {
				c.reportUpdateFailure(id, err)
			}
			c.pending--
			if c.pending == 0 {
				for _, ch := range c.idle {
					close(ch)
				}
				c.idle = nil
			}
		})
	}()
}

func (c *Compositor) reportUpdateFailure(id overlay.ID, err error) {
	c.countFailure(OpUpdate)
	c.log.Warn("failed to persist overlay update",
		slog.String("id", string(id)),
		slog.String("error", err.Error()),
	)
	if c.onError != nil {
		c.onError(OpUpdate, id, err)
	}
}

func (c *Compositor) countFailure(op Op) {
	if c.metrics != nil {
		c.metrics.IncPersistFailures(string(op))
	}
}

func (c *Compositor) replace(list []overlay.Overlay) {
	c.order = c.order[:0]
	clear(c.items)
	for _, o := range list {
		c.upsert(o)
	}
	c.notify()
}

// upsert keeps the first insertion slot for a repeated id.
func (c *Compositor) upsert(o overlay.Overlay) {
	if _, exists := c.items[o.ID]; !exists {
		c.order = append(c.order, o.ID)
	}
	c.items[o.ID] = o
}

func (c *Compositor) remove(id overlay.ID) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *Compositor) snapshot() []overlay.Overlay {
	out := make([]overlay.Overlay, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Compositor) notify() {
	if len(c.listeners) == 0 {
		return
	}
	snap := c.snapshot()
	for _, fn := range c.listeners {
		fn(snap)
	}
}
