package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlay"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newOverlayAPI serves the real overlay handler on an in-memory store.
func newOverlayAPI(t *testing.T) (*httptest.Server, *overlay.InMemoryStore) {
	t.Helper()
	n := 0
	store := overlay.NewInMemoryStoreWithIDs(func() overlay.ID {
		n++
		return overlay.ID(strconv.Itoa(n))
	})
	h := overlay.NewHandler(overlay.NewService(store, quietLogger()), quietLogger(), nil)

	r := chi.NewRouter()
	r.Route("/api/overlays", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func newTestOverlayClient(t *testing.T, baseURL string) *OverlayClient {
	t.Helper()
	c, err := NewOverlayClient(baseURL, &http.Client{Timeout: 2 * time.Second}, quietLogger())
	if err != nil {
		t.Fatalf("NewOverlayClient: %v", err)
	}
	return c
}

func TestOverlayClient_roundtrip(t *testing.T) {
	srv, store := newOverlayAPI(t)
	c := newTestOverlayClient(t, srv.URL)
	ctx := context.Background()

	pos := geometry.Position{X: 50, Y: 50}
	created, err := c.Create(ctx, overlay.Draft{Kind: overlay.KindImage, Content: "http://x/img.png", Position: &pos})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "1" || created.Size != (geometry.Size{Width: 50, Height: 50}) {
		t.Errorf("unexpected created overlay %+v", created)
	}

	size := geometry.Size{Width: 100, Height: 80}
	if err := c.Update(ctx, created.ID, overlay.Patch{Size: &size}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	list, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Size != size || list[0].Position != pos {
		t.Errorf("unexpected list %+v", list)
	}

	if err := c.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Len() != 0 {
		t.Error("store should be empty after delete")
	}
}

func TestOverlayClient_Update_sends_only_set_fields(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		envelope.WriteOK(w, http.StatusOK, "")
	}))
	defer srv.Close()

	pos := geometry.Position{X: 1, Y: 2}
	if err := newTestOverlayClient(t, srv.URL).Update(context.Background(), "abc", overlay.Patch{Position: &pos}); err != nil {
		t.Fatal(err)
	}
	if _, ok := got["position"]; !ok {
		t.Error("position missing from patch body")
	}
	if _, ok := got["size"]; ok {
		t.Error("size must be omitted from a position-only patch")
	}
}

func TestOverlayClient_failures(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantNetwork  bool
		wantRejected bool
		wantMessage  string
	}{
		{
			name: "Rejected - success false with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				envelope.WriteJSON(w, http.StatusOK, envelope.Envelope{Success: false, Error: "db unavailable"})
			},
			wantRejected: true,
			wantMessage:  "db unavailable",
		},
		{
			name: "Rejected - 404 envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				envelope.WriteError(w, http.StatusNotFound, "overlay not found")
			},
			wantRejected: true,
			wantMessage:  "overlay not found",
		},
		{
			name: "Rejected - 502 without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantRejected: true,
			wantMessage:  "Bad Gateway",
		},
		{
			name: "Rejected - malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
			wantRejected: true,
			wantMessage:  "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			err := newTestOverlayClient(t, srv.URL).Delete(context.Background(), "1")
			if err == nil {
				t.Fatal("expected error")
			}
			if envelope.IsNetwork(err) != tt.wantNetwork || envelope.IsRejected(err) != tt.wantRejected {
				t.Errorf("misclassified error %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMessage) {
				t.Errorf("error %q should mention %q", err, tt.wantMessage)
			}
		})
	}
}

func TestOverlayClient_network_failure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestOverlayClient(t, url).List(context.Background())
	if !envelope.IsNetwork(err) {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestOverlayClient_Create_requires_server_id(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "overlay": map[string]any{"kind": "text", "content": "x"}})
	}))
	defer srv.Close()

	_, err := newTestOverlayClient(t, srv.URL).Create(context.Background(), overlay.Draft{Kind: overlay.KindText, Content: "x"})
	if !envelope.IsRejected(err) {
		t.Errorf("a record without id must be rejected, got %v", err)
	}
}

func TestNewOverlayClient_invalid_base(t *testing.T) {
	if _, err := NewOverlayClient("localhost:8080", nil, quietLogger()); err == nil {
		t.Error("expected error for base URL without scheme")
	}
}

func TestOverlayClient_unknown_kinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			envelope.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "overlay": map[string]any{"id": "9", "kind": "video", "content": "x"}})
			return
		}
		envelope.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "overlays": []map[string]any{
			{"id": "1", "kind": "text", "content": "Hi"},
			{"id": "2", "kind": "video", "content": "clip.mp4"},
		}})
	}))
	defer srv.Close()
	c := newTestOverlayClient(t, srv.URL)

	list, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "1" {
		t.Errorf("records of unknown kind must be skipped, got %+v", list)
	}

	if _, err := c.Create(context.Background(), overlay.Draft{Kind: overlay.KindText, Content: "x"}); !envelope.IsRejected(err) {
		t.Errorf("a created record of unknown kind must be rejected, got %v", err)
	}
}
