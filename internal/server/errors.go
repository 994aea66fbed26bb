// Package server exposes the executor over HTTP. Every request is an
// independent invocation with its own database connection.
package server

import (
	"fmt"
	"net/http"

	"github.com/vibesql/pgquery/internal/postgres"
)

// NewInvalidRequestError creates an error for a body that cannot be decoded
func NewInvalidRequestError(detail string) *postgres.Error {
	return postgres.NewError(
		postgres.KindConfigurationError,
		"Invalid request body",
		detail,
	)
}

// NewRequestTooLargeError creates an error for a body over the size limit
func NewRequestTooLargeError(maxBytes int64) *postgres.Error {
	return postgres.NewError(
		postgres.KindConfigurationError,
		"Request body too large",
		fmt.Sprintf("Request body exceeds maximum allowed size (%d bytes)", maxBytes),
	)
}

// NewInternalError creates an error for internal server errors
func NewInternalError(detail string) *postgres.Error {
	return postgres.NewError(
		postgres.KindInternalError,
		"An internal error occurred",
		detail,
	)
}

// HTTPErrorKindMapping maps error kinds to HTTP status codes for reference.
// Tests check it against postgres.GetHTTPStatusCode.
var HTTPErrorKindMapping = map[postgres.Kind]int{
	postgres.KindDriverUnavailable:    http.StatusServiceUnavailable,  // 503
	postgres.KindUnsupportedFeature:   http.StatusUnprocessableEntity, // 422
	postgres.KindConnectionFailed:     http.StatusBadGateway,          // 502
	postgres.KindQueryFileNotFound:    http.StatusNotFound,            // 404
	postgres.KindQueryExecutionFailed: http.StatusBadRequest,          // 400
	postgres.KindConfigurationError:   http.StatusBadRequest,          // 400
	postgres.KindInternalError:        http.StatusInternalServerError, // 500
}

// ValidateHTTPStatusMapping reports the first kind whose status differs
// from HTTPErrorKindMapping.
func ValidateHTTPStatusMapping() error {
	for kind, expectedStatus := range HTTPErrorKindMapping {
		actualStatus := postgres.GetHTTPStatusCode(kind)
		if actualStatus != expectedStatus {
			return fmt.Errorf("HTTP status mismatch for %s: expected %d, got %d", kind, expectedStatus, actualStatus)
		}
	}
	return nil
}
