package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoEndpoints indicates the client was asked to generate without any
// candidate base URL.
var ErrNoEndpoints = errors.New("no llm endpoints configured")

// defaultStatus is reported when an upstream failure carries no HTTP status.
const defaultStatus = http.StatusBadGateway

// UpstreamHTTPError reports a non-2xx response from an attempted endpoint.
type UpstreamHTTPError struct {
	BaseURL string
	Path    string
	Status  int
	// Detail is the decoded JSON body when possible, else the raw body or the
	// status text.
	Detail any
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("llm %s%s failed: %d", e.BaseURL, e.Path, e.Status)
}

// UpstreamStreamError reports an in-band error field inside an otherwise
// successful response.
type UpstreamStreamError struct {
	BaseURL string
	Path    string
	Message string
	Detail  any
}

func (e *UpstreamStreamError) Error() string {
	return fmt.Sprintf("llm %s%s returned error: %s", e.BaseURL, e.Path, e.Message)
}

// TransportError reports a connection failure, timeout or body read failure.
type TransportError struct {
	BaseURL string
	Path    string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm %s%s transport failure: %v", e.BaseURL, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedEndpointsError is returned once every candidate has failed. It
// carries the last underlying error.
type ExhaustedEndpointsError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedEndpointsError) Error() string {
	return fmt.Sprintf("all %d llm endpoints failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedEndpointsError) Unwrap() error {
	return e.Last
}

// Status returns the HTTP status of the last failure, or 502 when the last
// failure did not carry a usable one.
func (e *ExhaustedEndpointsError) Status() int {
	var httpErr *UpstreamHTTPError
	if errors.As(e.Last, &httpErr) && httpErr.Status >= 100 && httpErr.Status <= 599 {
		return httpErr.Status
	}
	return defaultStatus
}

// Message returns a human readable description of the last failure.
func (e *ExhaustedEndpointsError) Message() string {
	var streamErr *UpstreamStreamError
	if errors.As(e.Last, &streamErr) {
		return streamErr.Message
	}
	if e.Last == nil {
		return "llm request failed"
	}
	return e.Last.Error()
}

// Detail returns the opaque detail payload of the last failure.
func (e *ExhaustedEndpointsError) Detail() any {
	var (
		httpErr      *UpstreamHTTPError
		streamErr    *UpstreamStreamError
		transportErr *TransportError
	)
	switch {
	case errors.As(e.Last, &httpErr):
		return httpErr.Detail
	case errors.As(e.Last, &streamErr):
		return streamErr.Detail
	case errors.As(e.Last, &transportErr):
		return transportErr.Err.Error()
	}
	return nil
}

func newHTTPError(baseURL, path string, status int, body []byte) *UpstreamHTTPError {
	return &UpstreamHTTPError{
		BaseURL: baseURL,
		Path:    path,
		Status:  status,
		Detail:  errorDetail(status, body),
	}
}

func errorDetail(status int, body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return http.StatusText(status)
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}
	return trimmed
}
