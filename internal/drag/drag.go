// Package drag turns pointer drag gestures into compositor moves.
package drag

import (
	"sync"

	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlay"
)

// Opacity values for overlays at rest and while being dragged.
const (
	RestingOpacity  = 1.0
	DraggingOpacity = 0.5
)

// Mover applies a relative move. compositor.Compositor satisfies it.
type Mover interface {
	MoveOverlay(id overlay.ID, dx, dy float64)
}

type gesture struct {
	start geometry.Position
	// sent is the part of the offset from start already forwarded.
	sent geometry.Position
}

// Adapter tracks one gesture per overlay. Offsets are measured from the
// pointer position at Begin, and each call forwards only the part of that
// offset not yet forwarded, so an overlay ends at its start position plus
// the total pointer offset.
type Adapter struct {
	mover Mover

	mu       sync.Mutex
	gestures map[overlay.ID]*gesture
}

func New(m Mover) *Adapter {
	return &Adapter{mover: m, gestures: make(map[overlay.ID]*gesture)}
}

// Begin starts a drag at pointer. Beginning an already active drag restarts
// it from pointer.
func (a *Adapter) Begin(id overlay.ID, pointer geometry.Position) {
	a.mu.Lock()
	a.gestures[id] = &gesture{start: pointer}
	a.mu.Unlock()
}

// Update forwards the pointer movement since the last forwarded position.
// It is ignored when no drag is active for id.
func (a *Adapter) Update(id overlay.ID, pointer geometry.Position) {
	a.forward(id, pointer, false)
}

// End forwards any remaining movement and finishes the drag. Nothing beyond
// the moves themselves is persisted.
func (a *Adapter) End(id overlay.ID, pointer geometry.Position) {
	a.forward(id, pointer, true)
}

// Cancel drops the drag without forwarding anything more.
func (a *Adapter) Cancel(id overlay.ID) {
	a.mu.Lock()
	delete(a.gestures, id)
	a.mu.Unlock()
}

func (a *Adapter) Dragging(id overlay.ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.gestures[id]
	return ok
}

// Opacity is the render opacity for id.
func (a *Adapter) Opacity(id overlay.ID) float64 {
	if a.Dragging(id) {
		return DraggingOpacity
	}
	return RestingOpacity
}

func (a *Adapter) forward(id overlay.ID, pointer geometry.Position, end bool) {
	a.mu.Lock()
	g, ok := a.gestures[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	totalX, totalY := pointer.Sub(g.start)
	dx, dy := totalX-g.sent.X, totalY-g.sent.Y
	g.sent = geometry.Position{X: totalX, Y: totalY}
	if end {
		delete(a.gestures, id)
	}
	a.mu.Unlock()

	if dx == 0 && dy == 0 {
		return
	}
	a.mover.MoveOverlay(id, dx, dy)
}
