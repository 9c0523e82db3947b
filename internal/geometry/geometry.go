// Package geometry holds the coordinate model overlays are placed in: pixel
// positions and sizes in the video viewport's local space, origin top-left.
package geometry

// Position is a point in viewport pixels. Negative values and values past the
// viewport edge are valid; overlays may sit off-screen.
type Position struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Size is an overlay extent. Text overlays only use Height, as font scale.
type Size struct {
	Width  float64 `json:"width" bson:"width"`
	Height float64 `json:"height" bson:"height"`
}

// ApplyDelta returns p moved by (dx, dy). No clamping.
func ApplyDelta(p Position, dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Sub returns the offset that takes q to p.
func (p Position) Sub(q Position) (dx, dy float64) {
	return p.X - q.X, p.Y - q.Y
}

// IsZero reports whether both dimensions are unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}
