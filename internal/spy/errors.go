package spy

import (
	"errors"
	"fmt"
)

// Domain-specific errors for camera-server operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnection is returned when the server cannot be reached.
	ErrConnection = errors.New("spy: connection failed")

	// ErrAuthentication is returned when the server rejects our credentials.
	ErrAuthentication = errors.New("spy: authentication failed")

	// ErrMalformedResponse is returned when the server's response cannot be parsed.
	ErrMalformedResponse = errors.New("spy: malformed response")

	// ErrCommandRejected is returned when the server refuses a command.
	ErrCommandRejected = errors.New("spy: command rejected")

	// ErrUnsupportedVersion is returned when an operation needs a newer
	// server than the one we are talking to.
	ErrUnsupportedVersion = errors.New("spy: operation not supported by server version")
)

// StatusError carries the HTTP status code of a rejected request.
// It wraps ErrCommandRejected or ErrAuthentication so errors.Is works
// on both the sentinel and the concrete type.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spy: server returned HTTP %d", e.Code)
}

// Unwrap maps the status code onto the matching sentinel error.
func (e *StatusError) Unwrap() error {
	if e.Code == 401 || e.Code == 403 {
		return ErrAuthentication
	}
	return ErrCommandRejected
}
