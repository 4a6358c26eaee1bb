// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// Coder is implemented by typed domain errors that name a more specific
// problem code than their sentinel class.
type Coder interface {
	ProblemCode() string
}

// Problem codes shared with API clients.
const (
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeAlreadyProcessed = "already_processed"
	CodeValidation       = "validation"
	CodeUnauthenticated  = "unauthenticated"
	CodeInternal         = "internal"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title, code := classify(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	var coder Coder
	if errors.As(err, &coder) && status != http.StatusInternalServerError {
		code = coder.ProblemCode()
	}
	JSON(w, status, ProblemDetail{Title: title, Status: status, Detail: detail, Code: code})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, shared.ErrInvariant):
		return http.StatusInternalServerError, "Internal Error", CodeInternal
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found", CodeNotFound
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden", CodeForbidden
	case errors.Is(err, shared.ErrAlreadyProcessed):
		return http.StatusBadRequest, "Already Processed", CodeAlreadyProcessed
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed", CodeValidation
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Unauthorized", CodeUnauthenticated
	default:
		return http.StatusInternalServerError, "Internal Error", CodeInternal
	}
}
