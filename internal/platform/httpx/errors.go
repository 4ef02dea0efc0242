// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-catering/internal/shared"
)

// ExtendedError lets a domain error attach RFC7807 extension members.
type ExtendedError interface {
	error
	ProblemExtensions() map[string]any
}

// StatusCoder lets a domain error choose its own status.
type StatusCoder interface {
	StatusCode() int
}

type problem struct {
	status     int
	title      string
	detail     string
	extensions map[string]any
}

func problemFor(err error) problem {
	var ext ExtendedError
	var extensions map[string]any
	if errors.As(err, &ext) {
		extensions = ext.ProblemExtensions()
	}
	var coded StatusCoder
	if errors.As(err, &coded) {
		return problem{coded.StatusCode(), http.StatusText(coded.StatusCode()), err.Error(), extensions}
	}
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return problem{http.StatusBadRequest, "Validation Failed", "request failed validation", map[string]any{"fields": fields}}
	case errors.Is(err, shared.ErrNotFound):
		return problem{http.StatusNotFound, "Not Found", err.Error(), nil}
	case errors.Is(err, shared.ErrInvalidQuantity), errors.Is(err, shared.ErrValidation):
		return problem{http.StatusBadRequest, "Validation Failed", err.Error(), extensions}
	case errors.Is(err, shared.ErrUnprocessable):
		return problem{http.StatusUnprocessableEntity, "Unprocessable", err.Error(), nil}
	case errors.Is(err, shared.ErrConcurrentModification):
		return problem{http.StatusConflict, "Concurrent Modification", err.Error(), map[string]any{"retryable": true}}
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return problem{http.StatusConflict, "Duplicate", err.Error(), nil}
	case errors.Is(err, shared.ErrConflict):
		return problem{http.StatusConflict, "Conflict", err.Error(), extensions}
	case errors.Is(err, shared.ErrLockUnavailable):
		return problem{http.StatusServiceUnavailable, "Lock Unavailable", err.Error(), map[string]any{"retryable": true}}
	default:
		return problem{http.StatusInternalServerError, "Internal Error", "", nil}
	}
}

// StatusOf returns the status RespondError would send for err.
func StatusOf(err error) int {
	return problemFor(err).status
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	p := problemFor(err)
	ProblemWith(w, p.status, p.title, p.detail, p.extensions)
}
