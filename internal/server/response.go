package server

import (
	"encoding/json"
	"net/http"

	"github.com/vibesql/pgquery/internal/postgres"
	"github.com/vibesql/pgquery/internal/query"
)

// SuccessResponse wraps an execution result
type SuccessResponse struct {
	Success bool `json:"success"`
	*query.ExecutionResult
}

// ErrorResponse reports a failed invocation
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// ErrorDetail represents error information in the response
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	// QueryArguments echoes the bound arguments of a failed statement
	QueryArguments any `json:"query_arguments,omitempty"`
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(result *query.ExecutionResult) *SuccessResponse {
	if result == nil {
		result = &query.ExecutionResult{QueryResults: []map[string]any{}}
	}
	return &SuccessResponse{
		Success:         true,
		ExecutionResult: result,
	}
}

// NewErrorResponse creates an error response from a typed error
func NewErrorResponse(err *postgres.Error) *ErrorResponse {
	if err == nil {
		return &ErrorResponse{
			Error: &ErrorDetail{
				Code:    string(postgres.KindInternalError),
				Message: "Unknown error occurred",
			},
		}
	}

	return &ErrorResponse{
		Error: &ErrorDetail{
			Code:           string(err.Kind),
			Message:        err.Message,
			Detail:         err.Detail,
			QueryArguments: err.Args,
		},
	}
}

// WriteJSON writes any response body as JSON
func WriteJSON(w http.ResponseWriter, statusCode int, response any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	return encoder.Encode(response)
}

// WriteSuccess writes a successful response with 200 OK status
func WriteSuccess(w http.ResponseWriter, result *query.ExecutionResult) error {
	return WriteJSON(w, http.StatusOK, NewSuccessResponse(result))
}

// WriteError writes an error response with the status mapped from its kind.
// Untyped errors are reported as internal errors.
func WriteError(w http.ResponseWriter, err error) error {
	var pgErr *postgres.Error
	if err != nil {
		pgErr = postgres.AsError(err)
	}
	response := NewErrorResponse(pgErr)
	statusCode := postgres.GetHTTPStatusCode(postgres.Kind(response.Error.Code))
	return WriteJSON(w, statusCode, response)
}
