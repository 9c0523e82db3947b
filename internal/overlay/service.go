package overlay

import (
	"context"
	"fmt"
	"log/slog"
)

// Service validates requests and delegates storage to a Store.
type Service struct {
	store Store
	log   *slog.Logger
}

// NewService returns a Service backed by store.
func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// List returns every overlay, normalised, in store order. Records of an
// unknown kind are logged and left out.
func (s *Service) List(ctx context.Context) ([]Overlay, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}
	overlays := make([]Overlay, 0, len(stored))
	for _, o := range stored {
		n, err := o.Normalized()
		if err != nil {
			s.log.Warn("skipping stored overlay", slog.String("id", string(o.ID)), slog.String("error", err.Error()))
			continue
		}
		overlays = append(overlays, n)
	}
	return overlays, nil
}

// Create normalises d and stores it. The returned record carries the
// store-assigned id.
func (s *Service) Create(ctx context.Context, d Draft) (Overlay, error) {
	o, err := Normalize(d)
	if err != nil {
		return Overlay{}, err
	}
	stored, err := s.store.Insert(ctx, o)
	if err != nil {
		return Overlay{}, fmt.Errorf("create overlay: %w", err)
	}
	return stored, nil
}

// Update applies a partial patch.
func (s *Service) Update(ctx context.Context, id ID, p Patch) error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	return s.store.Update(ctx, id, p)
}

// Delete removes the overlay with the given id.
func (s *Service) Delete(ctx context.Context, id ID) error {
	return s.store.Delete(ctx, id)
}
