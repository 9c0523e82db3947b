package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlay"
	"overlay-studio/internal/platform/logger"
)

func newTestAPI(t *testing.T) (*httptest.Server, *overlay.InMemoryStore) {
	t.Helper()
	n := 0
	store := overlay.NewInMemoryStoreWithIDs(func() overlay.ID {
		n++
		return overlay.ID(strconv.Itoa(n))
	})
	h := overlay.NewHandler(overlay.NewService(store, logger.Nop()), logger.Nop(), nil)

	r := chi.NewRouter()
	r.Route("/api/overlays", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	r.Post("/api/stream/start", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      "Stream started",
			"playlist_url": "/stream/output.m3u8",
		})
	})
	r.Post("/api/stream/stop", func(w http.ResponseWriter, r *http.Request) {
		envelope.WriteError(w, http.StatusBadRequest, "no stream running")
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func run(t *testing.T, api string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--api", api}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOverlayctl_add_move_list(t *testing.T) {
	srv, store := newTestAPI(t)

	out, err := run(t, srv.URL, "add", "text", "LIVE")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if strings.TrimSpace(out) != "1" {
		t.Errorf("expected new id, got %q", out)
	}

	if _, err := run(t, srv.URL, "move", "1", "5", "-3"); err != nil {
		t.Fatalf("move: %v", err)
	}
	stored, _ := store.List(context.Background())
	if stored[0].Position != (geometry.Position{X: 55, Y: 47}) {
		t.Errorf("expected {55 47} persisted, got %v", stored[0].Position)
	}

	if _, err := run(t, srv.URL, "resize", "1", "0", "32"); err != nil {
		t.Fatalf("resize: %v", err)
	}

	out, err = run(t, srv.URL, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "55,47") || !strings.Contains(out, "0x32") || !strings.Contains(out, "LIVE") {
		t.Errorf("unexpected listing:\n%s", out)
	}
}

func TestOverlayctl_negative_numbers_are_arguments(t *testing.T) {
	srv, store := newTestAPI(t)

	if _, err := run(t, srv.URL, "add", "text", "LIVE"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := run(t, srv.URL, "move", "1", "-5", "-3"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := run(t, srv.URL, "resize", "1", "-1", "24"); err != nil {
		t.Fatalf("resize: %v", err)
	}

	stored, _ := store.List(context.Background())
	if stored[0].Position != (geometry.Position{X: 45, Y: 47}) {
		t.Errorf("expected {45 47} persisted, got %v", stored[0].Position)
	}
	if stored[0].Size != (geometry.Size{Width: 0, Height: 24}) {
		t.Errorf("expected text size {0 24} persisted, got %v", stored[0].Size)
	}
}

func TestOverlayctl_add_blank_is_ignored(t *testing.T) {
	srv, store := newTestAPI(t)

	out, err := run(t, srv.URL, "add", "image", " ")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "nothing to add") || store.Len() != 0 {
		t.Errorf("blank content should be ignored, got %q", out)
	}
}

func TestOverlayctl_move_unknown(t *testing.T) {
	srv, _ := newTestAPI(t)

	_, err := run(t, srv.URL, "move", "9", "1", "1")
	if err == nil || !strings.Contains(err.Error(), "overlay not found") {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestOverlayctl_rm(t *testing.T) {
	srv, _ := newTestAPI(t)
	run(t, srv.URL, "add", "text", "LIVE")

	if _, err := run(t, srv.URL, "rm", "1"); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, srv.URL, "rm", "1")
	if got := envelope.StatusMessage(err); got != "Error: overlay not found" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestOverlayctl_stream(t *testing.T) {
	srv, _ := newTestAPI(t)

	out, err := run(t, srv.URL, "stream", "start", "rtsp://cam/1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, srv.URL+"/stream/output.m3u8") {
		t.Errorf("expected absolute playlist URL, got %q", out)
	}

	_, err = run(t, srv.URL, "stream", "stop")
	if got := envelope.StatusMessage(err); got != "Error: no stream running" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestOverlayctl_backend_down(t *testing.T) {
	srv, _ := newTestAPI(t)
	srv.Close()

	_, err := run(t, srv.URL, "list")
	if got := envelope.StatusMessage(err); got != "Error connecting to backend" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestOverlayctl_bad_args(t *testing.T) {
	srv, _ := newTestAPI(t)

	if _, err := run(t, srv.URL, "add", "video", "x"); err == nil {
		t.Error("expected invalid kind error")
	}
	if _, err := run(t, srv.URL, "move", "1", "a", "b"); err == nil {
		t.Error("expected parse error")
	}
}
