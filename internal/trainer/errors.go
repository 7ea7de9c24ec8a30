package trainer

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotConfigured = errors.New("trainer endpoint or training key is not configured")

// Error is returned when the trainer service answers with a non 2xx status.
type Error struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("trainer service returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAccessDenied reports whether err means the training key or endpoint was rejected.
func IsAccessDenied(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "access denied")
}

func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode == http.StatusNotFound
}

// Message returns the message sent by the trainer service, or the error text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
