// Package client talks to the overlay persistence and stream control APIs.
// Every call is a single request/response: no retries, no caching. Failures
// come back as *envelope.NetworkError or *envelope.RejectedError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"overlay-studio/internal/envelope"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 4 * 1024 * 1024
)

// base carries the HTTP plumbing shared by OverlayClient and StreamClient.
type base struct {
	baseURL *url.URL
	http    *http.Client
	log     *slog.Logger
}

func newBase(baseURL string, httpClient *http.Client, log *slog.Logger) (base, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return base{}, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return base{}, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return base{baseURL: u, http: httpClient, log: log}, nil
}

// endpoint joins the API path onto the base URL.
func (b base) endpoint(p string) string {
	u := *b.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + p
	return u.String()
}

// resolve turns a server-relative reference into an absolute URL.
func (b base) resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.baseURL.ResolveReference(r).String(), nil
}

// do sends body as JSON and decodes the envelope response into out, which
// must embed envelope.Envelope. op names the call in errors.
func (b base) do(ctx context.Context, op, method, endpoint string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return &envelope.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &envelope.NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	var env envelope.Envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &envelope.RejectedError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &envelope.RejectedError{Op: op, Status: resp.StatusCode, Message: "malformed response body"}
	}
	if !env.Success {
		return &envelope.RejectedError{Op: op, Status: resp.StatusCode, Message: env.Error}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &envelope.RejectedError{Op: op, Status: resp.StatusCode, Message: "malformed response body"}
		}
	}

	b.log.Debug("api call", slog.String("op", op), slog.Int("status", resp.StatusCode))
	return nil
}
