package wire

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Wyydra/huddle/internal/core/domain"
)

type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

var codes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrMeetingEnded, http.StatusGone, "meeting_ended"},
	{domain.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{domain.ErrInvalidSignal, http.StatusBadRequest, "invalid_signal"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// Status maps err to an HTTP status and a stable code.
func Status(err error) (int, string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// Err turns an error body back into an error matching the original sentinel.
func (e Error) Err() error {
	for _, c := range codes {
		if c.code == e.Code {
			return fmt.Errorf("%w: %s", c.err, e.Message)
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrTransportUnavailable, e.Message)
}
