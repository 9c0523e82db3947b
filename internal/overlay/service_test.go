package overlay

import (
	"context"
	"errors"
	"testing"

	"overlay-studio/internal/geometry"
	"overlay-studio/internal/platform/logger"
)

type failingStore struct{ err error }

func (s failingStore) List(context.Context) ([]Overlay, error) { return nil, s.err }
func (s failingStore) Insert(context.Context, Overlay) (Overlay, error) { return Overlay{}, s.err }
func (s failingStore) Update(context.Context, ID, Patch) error { return s.err }
func (s failingStore) Delete(context.Context, ID) error { return s.err }

func TestService_Create_normalises(t *testing.T) {
	svc := NewService(NewInMemoryStoreWithIDs(sequentialIDs()), logger.Nop())

	o, err := svc.Create(context.Background(), Draft{Kind: KindImage, Content: "http://x/img.png"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.ID != "1" {
		t.Errorf("expected store id 1, got %q", o.ID)
	}
	if o.Size != (geometry.Size{Width: 50, Height: 50}) {
		t.Errorf("expected default image size, got %v", o.Size)
	}
}

func TestService_Create_validation(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store, logger.Nop())

	if _, err := svc.Create(context.Background(), Draft{Kind: KindText}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("invalid draft must not be stored")
	}
}

func TestService_Update_empty_patch(t *testing.T) {
	svc := NewService(NewInMemoryStore(), logger.Nop())
	if err := svc.Update(context.Background(), "1", Patch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Errorf("expected ErrEmptyPatch, got %v", err)
	}
}

func TestService_List_wraps_store_error(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(failingStore{err: boom}, logger.Nop())
	if _, err := svc.List(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestService_List_skips_unknown_kinds(t *testing.T) {
	store := NewInMemoryStoreWithIDs(sequentialIDs())
	ctx := context.Background()
	store.Insert(ctx, Overlay{Kind: KindText, Content: "Hi"})
	store.Insert(ctx, Overlay{Kind: "video", Content: "clip.mp4"})
	store.Insert(ctx, Overlay{Kind: KindImage, Content: "a.png"})

	list, err := NewService(store, logger.Nop()).List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "3" {
		t.Errorf("expected records 1 and 3, got %+v", list)
	}
	for _, o := range list {
		if o.Kind == "video" {
			t.Errorf("unknown kind leaked: %+v", o)
		}
	}
}
