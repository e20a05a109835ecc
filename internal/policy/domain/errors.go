package domain

import (
	"errors"
	"net/http"
)

// Error taxonomy shared by every layer. Callers match with errors.Is; the
// wrapping message carries the detail.
var (
	// ErrInvalidInput marks malformed or out-of-range caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a rule, device, domain entry or override that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness violation, e.g. the same domain twice in one list.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExpired is returned when expiring an override that has already expired.
	ErrAlreadyExpired = errors.New("override already expired")
	// ErrUnknownAction is a programming error: an activity was recorded with an action type outside the enum.
	ErrUnknownAction = errors.New("unknown activity action type")
)

// HTTPStatus maps an error from this module onto the status code an HTTP
// front end should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAlreadyExpired), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
