// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflicting state")
	ErrUpstream   = errors.New("backend unavailable")
)

type errorMapping struct {
	err    error
	status int
	title  string
	code   string
	// detail is echoed to the client only for caller mistakes.
	detail bool
}

var errorMappings = []errorMapping{
	{ErrValidation, http.StatusBadRequest, "Validation Failed", "validation", true},
	{ErrNotFound, http.StatusNotFound, "Not Found", "not_found", true},
	{ErrDuplicate, http.StatusConflict, "Duplicate", "duplicate", true},
	{ErrConflict, http.StatusConflict, "Conflict", "conflict", true},
	{ErrUpstream, http.StatusBadGateway, "Backend Unavailable", "upstream", false},
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	if m, ok := lookup(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	m, ok := lookup(err)
	if !ok {
		write(w, ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError, Code: "internal"})
		return
	}
	problem := ProblemDetail{Title: m.title, Status: m.status, Code: m.code}
	if m.detail {
		problem.Detail = err.Error()
	}
	write(w, problem)
}

func lookup(err error) (errorMapping, bool) {
	if err == nil {
		return errorMapping{}, false
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}
