// Package envelope defines the uniform response body shared by the overlay
// and stream APIs, and the errors clients report when a call fails.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Envelope is the common part of every API response. Payload fields
// ("overlays", "overlay", "playlist_url") sit next to these keys.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NetworkError means the request never got a response from the collaborator.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError means the collaborator answered, but with success:false or a
// non-2xx status.
type RejectedError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: rejected with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: rejected with status %d: %s", e.Op, e.Status, e.Message)
}

// IsNetwork reports whether err wraps a *NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRejected reports whether err wraps a *RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// StatusMessage renders err as the short operator-facing text the studio
// shows: "Error connecting to backend" for network failures, "Error: <reason>"
// otherwise.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsNetwork(err) {
		return "Error connecting to backend"
	}
	var re *RejectedError
	if errors.As(err, &re) && re.Message != "" {
		return "Error: " + re.Message
	}
	return "Error: " + err.Error()
}

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteOK writes {"success":true,"message":msg}.
func WriteOK(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Success: true, Message: msg})
}

// WriteError writes {"success":false,"error":msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Success: false, Error: msg})
}
