package overlay

import (
	"errors"
	"fmt"
	"strings"

	"overlay-studio/internal/geometry"
)

// ID identifies a persisted overlay. It is assigned by the store on creation
// and never changes.
type ID string

// Kind selects how an overlay's content is rendered.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Default extents applied when a record carries no size.
const (
	DefaultImageWidth  = 50
	DefaultImageHeight = 50
	DefaultTextScale   = 20
)

var (
	ErrNotFound     = errors.New("overlay not found")
	ErrInvalidKind  = errors.New("overlay kind must be text or image")
	ErrEmptyContent = errors.New("overlay content is required")
	ErrEmptyPatch   = errors.New("update must set position, size or content")
)

// ParseKind accepts "text" or "image" in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindText, KindImage:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// DefaultSize is the size a record of kind k gets when none was given.
func (k Kind) DefaultSize() geometry.Size {
	if k == KindImage {
		return geometry.Size{Width: DefaultImageWidth, Height: DefaultImageHeight}
	}
	return geometry.Size{Height: DefaultTextScale}
}

// Overlay is a positioned text or image annotation drawn above the video.
// Position and Size are always populated; see Normalize.
type Overlay struct {
	ID       ID                `json:"id"`
	Kind     Kind              `json:"kind"`
	Content  string            `json:"content"`
	Position geometry.Position `json:"position"`
	Size     geometry.Size     `json:"size"`
}

// TextScale is the font scale of a text overlay.
func (o Overlay) TextScale() float64 {
	return o.Size.Height
}

// Draft is the body of a create request. Position and Size are optional.
type Draft struct {
	Kind     Kind               `json:"kind"`
	Content  string             `json:"content"`
	Position *geometry.Position `json:"position,omitempty"`
	Size     *geometry.Size     `json:"size,omitempty"`
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Position *geometry.Position `json:"position,omitempty"`
	Size     *geometry.Size     `json:"size,omitempty"`
	Content  *string            `json:"content,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Position == nil && p.Size == nil && p.Content == nil
}

// Apply returns o with the patch's fields applied.
func (p Patch) Apply(o Overlay) Overlay {
	if p.Position != nil {
		o.Position = *p.Position
	}
	if p.Size != nil {
		o.Size = *p.Size
	}
	if p.Content != nil {
		o.Content = *p.Content
	}
	return o.withDefaults()
}

// Normalize validates a draft and turns it into a record without an id:
// missing position becomes the origin, missing size dimensions become the
// kind's default.
func Normalize(d Draft) (Overlay, error) {
	kind, err := ParseKind(string(d.Kind))
	if err != nil {
		return Overlay{}, err
	}
	if strings.TrimSpace(d.Content) == "" {
		return Overlay{}, ErrEmptyContent
	}

	o := Overlay{Kind: kind, Content: d.Content}
	if d.Position != nil {
		o.Position = *d.Position
	}
	if d.Size != nil {
		o.Size = *d.Size
	}
	return o.withDefaults(), nil
}

// Normalized fills missing size dimensions on a record read back from a
// store, so legacy or hand-edited records never reach callers partial. A
// record whose kind is neither text nor image is returned with
// ErrInvalidKind; it is never coerced.
func (o Overlay) Normalized() (Overlay, error) {
	kind, err := ParseKind(string(o.Kind))
	if err != nil {
		return o, fmt.Errorf("overlay %s: %w", o.ID, err)
	}
	o.Kind = kind
	return o.withDefaults(), nil
}

func (o Overlay) withDefaults() Overlay {
	def := o.Kind.DefaultSize()
	if o.Kind == KindImage && o.Size.Width == 0 {
		o.Size.Width = def.Width
	}
	if o.Size.Height == 0 {
		o.Size.Height = def.Height
	}
	return o
}
