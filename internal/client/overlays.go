package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"overlay-studio/internal/envelope"
	"overlay-studio/internal/overlay"
)

const overlaysPath = "/api/overlays"

// OverlayClient is the typed client of the overlay persistence API.
type OverlayClient struct {
	base
}

// NewOverlayClient returns a client for the API rooted at baseURL
// (e.g. "http://localhost:8080"). httpClient may be nil.
func NewOverlayClient(baseURL string, httpClient *http.Client, log *slog.Logger) (*OverlayClient, error) {
	b, err := newBase(baseURL, httpClient, log)
	if err != nil {
		return nil, err
	}
	return &OverlayClient{base: b}, nil
}

type listResponse struct {
	envelope.Envelope
	Overlays []overlay.Overlay `json:"overlays"`
}

type createResponse struct {
	envelope.Envelope
	Overlay overlay.Overlay `json:"overlay"`
}

// List fetches every overlay in store order.
func (c *OverlayClient) List(ctx context.Context) ([]overlay.Overlay, error) {
	var resp listResponse
	if err := c.do(ctx, "list overlays", http.MethodGet, c.endpoint(overlaysPath), nil, &resp); err != nil {
		return nil, err
	}
	overlays := make([]overlay.Overlay, 0, len(resp.Overlays))
	for _, o := range resp.Overlays {
		n, err := o.Normalized()
		if err != nil {
			c.log.Warn("skipping overlay", slog.String("id", string(o.ID)), slog.String("error", err.Error()))
			continue
		}
		overlays = append(overlays, n)
	}
	return overlays, nil
}

// Create persists d and returns the stored record with its server id.
func (c *OverlayClient) Create(ctx context.Context, d overlay.Draft) (overlay.Overlay, error) {
	var resp createResponse
	if err := c.do(ctx, "create overlay", http.MethodPost, c.endpoint(overlaysPath), d, &resp); err != nil {
		return overlay.Overlay{}, err
	}
	if resp.Overlay.ID == "" {
		return overlay.Overlay{}, &envelope.RejectedError{Op: "create overlay", Status: http.StatusOK, Message: "response carries no overlay id"}
	}
	o, err := resp.Overlay.Normalized()
	if err != nil {
		return overlay.Overlay{}, &envelope.RejectedError{Op: "create overlay", Status: http.StatusOK, Message: err.Error()}
	}
	return o, nil
}

// Update sends only the fields set in p.
func (c *OverlayClient) Update(ctx context.Context, id overlay.ID, p overlay.Patch) error {
	return c.do(ctx, "update overlay", http.MethodPut, c.endpoint(overlaysPath+"/"+url.PathEscape(string(id))), p, nil)
}

// Delete removes the overlay.
func (c *OverlayClient) Delete(ctx context.Context, id overlay.ID) error {
	return c.do(ctx, "delete overlay", http.MethodDelete, c.endpoint(overlaysPath+"/"+url.PathEscape(string(id))), nil, nil)
}
