package ward

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound means a patient, bed or admission id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means a request was rejected before any entity was read.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariant means the request would break a ward invariant, such as
	// discharging an admission that is no longer active.
	ErrInvariant = errors.New("invariant violation")
)

// StatusCode maps an error to the HTTP status reported to clients.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvariant):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
