package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrAuthentication covers bad, expired or missing credentials. The
	// connection stays usable and the client may retry authenticate.
	ErrAuthentication = fmt.Errorf("authentication failed")
	// ErrUnauthorized is an action attempted on a non-authenticated connection.
	ErrUnauthorized = fmt.Errorf("not authenticated")
	// ErrForbidden is an authenticated action on a resource the user is not
	// entitled to, e.g. marking someone else's message as read.
	ErrForbidden = fmt.Errorf("forbidden")
	ErrNotFound  = fmt.Errorf("not found")
	ErrValidation = fmt.Errorf("invalid payload")

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password complexity not met")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)

// MapToEvent translates a router failure into the outbound event name and the
// human-readable message carried in its payload. Expected failures keep their
// own message; anything else is reported as a generic failure so internals
// never leak to clients.
func MapToEvent(err error) (name string, message string) {
	switch {
	case stderrors.Is(err, ErrAuthentication):
		return "authentication_error", err.Error()
	case stderrors.Is(err, ErrUnauthorized),
		stderrors.Is(err, ErrForbidden),
		stderrors.Is(err, ErrNotFound),
		stderrors.Is(err, ErrValidation):
		return "error", err.Error()
	default:
		return "error", "internal error"
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }
