package overlay

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T, store Store) *Handler {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewHandler(NewService(store, log), log, nil)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/overlays", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Create(t *testing.T) {
	r := newTestRouter(newTestHandler(t, NewInMemoryStoreWithIDs(sequentialIDs())))

	rec := doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{
		"kind": "text", "content": "Hi", "position": map[string]float64{"x": 50, "y": 50},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var resp createResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Overlay.ID != "1" || resp.Overlay.Size.Height != 20 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_Create_legacy_type_field(t *testing.T) {
	r := newTestRouter(newTestHandler(t, NewInMemoryStore()))

	rec := doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{"type": "image", "content": "a.png"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp createResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Overlay.Kind != KindImage {
		t.Errorf("expected image kind, got %q", resp.Overlay.Kind)
	}
}

func TestHandler_Create_bad_request(t *testing.T) {
	r := newTestRouter(newTestHandler(t, NewInMemoryStore()))

	req := httptest.NewRequest(http.MethodPost, "/api/overlays", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{"kind": "text", "content": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty content, got %d", rec.Code)
	}
}

func TestHandler_List(t *testing.T) {
	r := newTestRouter(newTestHandler(t, NewInMemoryStoreWithIDs(sequentialIDs())))
	doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{"kind": "text", "content": "first"})
	doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{"kind": "text", "content": "second"})

	rec := doJSON(t, r, http.MethodGet, "/api/overlays", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp listResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Overlays) != 2 || resp.Overlays[0].Content != "first" {
		t.Errorf("unexpected overlays %+v", resp.Overlays)
	}
}

func TestHandler_List_store_failure(t *testing.T) {
	r := newTestRouter(newTestHandler(t, failingStore{err: errors.New("db down")}))
	rec := doJSON(t, r, http.MethodGet, "/api/overlays", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHandler_Update(t *testing.T) {
	r := newTestRouter(newTestHandler(t, NewInMemoryStoreWithIDs(sequentialIDs())))
	doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{"kind": "text", "content": "Hi"})

	rec := doJSON(t, r, http.MethodPut, "/api/overlays/1", map[string]any{"position": map[string]float64{"x": 15, "y": 7}})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	t.Run("not_found", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPut, "/api/overlays/99", map[string]any{"size": map[string]float64{"width": 1, "height": 1}})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("empty_patch", func(t *testing.T) {
		rec := doJSON(t, r, http.MethodPut, "/api/overlays/1", map[string]any{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestHandler_Delete(t *testing.T) {
	r := newTestRouter(newTestHandler(t, NewInMemoryStoreWithIDs(sequentialIDs())))
	doJSON(t, r, http.MethodPost, "/api/overlays", map[string]any{"kind": "text", "content": "Hi"})

	rec := doJSON(t, r, http.MethodDelete, "/api/overlays/1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodDelete, "/api/overlays/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}
}
