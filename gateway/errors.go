package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultErrorMessage is used when a failed response carries no message.
const DefaultErrorMessage = "Request failed"

var (
	// ErrStatus matches errors caused by a non-2xx response.
	ErrStatus = errors.New("unexpected response status")
	// ErrTimeout matches errors caused by the gateway timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrNetwork matches transport failures other than timeouts and caller
	// cancellation.
	ErrNetwork = errors.New("network error")
	// ErrDecode matches 2xx responses whose body is not valid JSON.
	ErrDecode = errors.New("invalid response body")
	// ErrInvalidBaseURL is returned by New for unusable base URLs.
	ErrInvalidBaseURL = errors.New("invalid base url")
)

// Error is returned by every failed call.
type Error struct {
	Method   string
	Endpoint string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	// Message is safe to show to end users.
	Message string
	// Body is the raw response body, when one was received.
	Body    []byte
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s %s: %s", e.Method, e.Endpoint, ErrTimeout)
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Endpoint, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel for the failure class.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Timeout
	case ErrStatus:
		return e.Status != 0 && (e.Status < 200 || e.Status > 299)
	case ErrNetwork:
		return e.Status == 0 && !e.Timeout && !e.canceled()
	}
	return false
}

func (e *Error) canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Status == 401
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Status
	}
	return 0
}

// ExtractMessage returns the user facing message of a failed response body:
// the "error" field, then the "message" field, then [DefaultErrorMessage].
func ExtractMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return DefaultErrorMessage
	}
	for _, raw := range []json.RawMessage{payload.Error, payload.Message} {
		if msg := stringField(raw); msg != "" {
			return msg
		}
	}
	return DefaultErrorMessage
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// {"error": {"message": "..."}}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}
