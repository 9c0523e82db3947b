package client

import (
	"context"
	"log/slog"
	"net/http"

	"overlay-studio/internal/envelope"
)

// StreamClient controls the capture pipeline through the stream API.
type StreamClient struct {
	base
}

// NewStreamClient returns a client for the API rooted at baseURL. httpClient may be nil.
func NewStreamClient(baseURL string, httpClient *http.Client, log *slog.Logger) (*StreamClient, error) {
	b, err := newBase(baseURL, httpClient, log)
	if err != nil {
		return nil, err
	}
	return &StreamClient{base: b}, nil
}

type startRequest struct {
	SourceURL string `json:"source_url"`
}

type startResponse struct {
	envelope.Envelope
	PlaylistURL string `json:"playlist_url"`
}

// Start asks the backend to transcode sourceURL and returns the absolute
// playlist URL to hand to the playback controller.
func (c *StreamClient) Start(ctx context.Context, sourceURL string) (string, error) {
	var resp startResponse
	if err := c.do(ctx, "start stream", http.MethodPost, c.endpoint("/api/stream/start"), startRequest{SourceURL: sourceURL}, &resp); err != nil {
		return "", err
	}
	if resp.PlaylistURL == "" {
		return "", &envelope.RejectedError{Op: "start stream", Status: http.StatusOK, Message: "response carries no playlist URL"}
	}
	playlist, err := c.resolve(resp.PlaylistURL)
	if err != nil {
		return "", &envelope.RejectedError{Op: "start stream", Status: http.StatusOK, Message: "invalid playlist URL"}
	}
	return playlist, nil
}

// Stop asks the backend to stop the capture pipeline.
func (c *StreamClient) Stop(ctx context.Context) error {
	return c.do(ctx, "stop stream", http.MethodPost, c.endpoint("/api/stream/stop"), nil, nil)
}
