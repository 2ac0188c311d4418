package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the backend rejected the credential. Callers force a logout.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials means the login collaborator rejected username/password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrEmptyCredential is returned when storing an empty token.
	ErrEmptyCredential = errors.New("credential must not be empty")
	// ErrNotAuthenticated is returned when a fetch is requested without a session.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrStaleResult marks a fetch result that arrived after its session or a newer fetch.
	ErrStaleResult = errors.New("stale fetch result discarded")
)

// NetworkError covers transport failures and non-auth error statuses.
// Status is 0 when no response was received.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: backend returned status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedResponseError is a 2xx response whose body could not be decoded.
// It always travels wrapped in a *NetworkError.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is a NetworkError, malformed payloads included.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsMalformedResponse reports whether err carries a MalformedResponseError.
func IsMalformedResponse(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}
