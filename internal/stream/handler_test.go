package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"overlay-studio/internal/envelope"
)

func newTestRouter(t *testing.T, tr Transcoder) (*chi.Mux, *Service) {
	t.Helper()
	svc := newTestService(t, tr)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(svc, log, nil)

	r := chi.NewRouter()
	r.Route("/api/stream", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Get("/status", h.Status)
	})
	r.Handle("/stream/*", http.StripPrefix("/stream", http.HandlerFunc(h.Files)))
	return r, svc
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Start(t *testing.T) {
	r, _ := newTestRouter(t, &fakeTranscoder{})

	rec := post(t, r, "/api/stream/start", map[string]string{"source_url": "rtsp://cam/1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.PlaylistURL != "/stream/output.m3u8" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_Start_legacy_field(t *testing.T) {
	r, svc := newTestRouter(t, &fakeTranscoder{})
	rec := post(t, r, "/api/stream/start", map[string]string{"rtsp_url": "rtsp://cam/legacy"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sess, _ := svc.Current(); sess.Source != "rtsp://cam/legacy" {
		t.Errorf("expected legacy source, got %q", sess.Source)
	}
}

func TestHandler_Start_invalid(t *testing.T) {
	r, _ := newTestRouter(t, &fakeTranscoder{})

	for _, body := range []map[string]string{{}, {"source_url": "http://not-rtsp"}} {
		rec := post(t, r, "/api/stream/start", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, rec.Code)
		}
		var env envelope.Envelope
		_ = json.NewDecoder(rec.Body).Decode(&env)
		if env.Success || env.Error == "" {
			t.Errorf("expected error envelope, got %+v", env)
		}
	}
}

func TestHandler_Start_transcoder_failure(t *testing.T) {
	r, _ := newTestRouter(t, &fakeTranscoder{fail: true})
	rec := post(t, r, "/api/stream/start", map[string]string{"source_url": "rtsp://cam/1"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHandler_Stop(t *testing.T) {
	r, _ := newTestRouter(t, &fakeTranscoder{})

	rec := post(t, r, "/api/stream/stop", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("stop without stream: expected 400, got %d", rec.Code)
	}

	post(t, r, "/api/stream/start", map[string]string{"source_url": "rtsp://cam/1"})
	rec = post(t, r, "/api/stream/stop", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Status(t *testing.T) {
	r, _ := newTestRouter(t, &fakeTranscoder{})
	post(t, r, "/api/stream/start", map[string]string{"source_url": "rtsp://cam/1"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream/status", nil))
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Running || resp.Session == nil || resp.Session.Source != "rtsp://cam/1" {
		t.Errorf("unexpected status %+v", resp)
	}
}

func TestHandler_Files_placeholder_playlist_while_starting(t *testing.T) {
	r, _ := newTestRouter(t, &fakeTranscoder{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/output.m3u8", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("no stream: expected 404, got %d", rec.Code)
	}

	post(t, r, "/api/stream/start", map[string]string{"source_url": "rtsp://cam/1"})

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/output.m3u8", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected placeholder playlist, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != playlistContentType {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "#EXTM3U") || strings.Contains(rec.Body.String(), "#EXT-X-ENDLIST") {
		t.Errorf("expected empty live playlist, got %q", rec.Body.String())
	}
}

func TestHandler_Files_serves_written_output(t *testing.T) {
	r, svc := newTestRouter(t, &fakeTranscoder{})
	post(t, r, "/api/stream/start", map[string]string{"source_url": "rtsp://cam/1"})

	seg := filepath.Join(svc.OutputDir(), "output0.ts")
	if err := os.WriteFile(seg, []byte("TSDATA"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/output0.ts", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "TSDATA" {
		t.Errorf("expected segment body, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != segmentContentType {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestFFmpegTranscoder_Args(t *testing.T) {
	tr := &FFmpegTranscoder{opts: FFmpegOptions{SegmentSeconds: 5, ListSize: 3}}
	args := strings.Join(tr.Args("rtsp://cam/1", "/out", "output.m3u8"), " ")

	for _, want := range []string{
		"-rtsp_transport tcp",
		"-i rtsp://cam/1",
		"-f hls",
		"-hls_time 5",
		"-hls_list_size 3",
		"-hls_flags delete_segments",
		filepath.Join("/out", "output.m3u8"),
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}
