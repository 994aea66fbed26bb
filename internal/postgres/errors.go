package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Kind classifies a failed invocation
type Kind string

const (
	KindDriverUnavailable    Kind = "DRIVER_UNAVAILABLE"
	KindUnsupportedFeature   Kind = "UNSUPPORTED_FEATURE"
	KindConnectionFailed     Kind = "CONNECTION_FAILED"
	KindQueryFileNotFound    Kind = "QUERY_FILE_NOT_FOUND"
	KindQueryExecutionFailed Kind = "QUERY_EXECUTION_FAILED"
	KindConfigurationError   Kind = "CONFIGURATION_ERROR"
	KindInternalError        Kind = "INTERNAL_ERROR"
)

// HTTP status codes for each kind
const (
	HTTPStatusDriverUnavailable    = 503
	HTTPStatusUnsupportedFeature   = 422
	HTTPStatusConnectionFailed     = 502
	HTTPStatusQueryFileNotFound    = 404
	HTTPStatusQueryExecutionFailed = 400
	HTTPStatusConfigurationError   = 400
	HTTPStatusInternalError        = 500
)

// Error is the typed failure of a single invocation
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	// Args holds the bind arguments that were attempted, if any
	Args any
	Err  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new typed error
func NewError(kind Kind, message, detail string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Detail:  detail,
	}
}

// Wrap creates a typed error around a cause, describing the cause in Detail
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Detail:  Describe(err),
		Err:     err,
	}
}

// KindOf returns the kind of err, or KindInternalError for untyped errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// AsError returns err as *Error, wrapping untyped errors as internal errors
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternalError, "An internal error occurred", err)
}

// SQLSTATE condition names reported in error details
var sqlStateConditions = map[string]string{
	"42601": "syntax_error",
	"42703": "undefined_column",
	"42P01": "undefined_table",
	"42P02": "undefined_parameter",
	"42883": "undefined_function",
	"42804": "datatype_mismatch",
	"42501": "insufficient_privilege",
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"23502": "not_null_violation",
	"22P02": "invalid_text_representation",
	"25P02": "in_failed_sql_transaction",
	"57014": "query_canceled",
	"53000": "insufficient_resources",
	"53300": "too_many_connections",
	"08000": "connection_exception",
	"08001": "sqlclient_unable_to_establish_sqlconnection",
	"08004": "sqlserver_rejected_establishment_of_sqlconnection",
	"08006": "connection_failure",
	"28000": "invalid_authorization_specification",
	"28P01": "invalid_password",
	"3D000": "invalid_catalog_name",
}

// Describe renders a driver error into a human-readable detail string.
// Server errors from either driver carry SQLSTATE, detail, hint and position.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "operation exceeded its deadline"
	}
	if errors.Is(err, context.Canceled) {
		return "operation was canceled"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		position := ""
		if pgErr.Position != 0 {
			position = fmt.Sprint(pgErr.Position)
		}
		return buildErrorDetail(pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, position)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return buildErrorDetail(string(pqErr.Code), pqErr.Message, pqErr.Detail, pqErr.Hint, pqErr.Position)
	}

	return err.Error()
}

func buildErrorDetail(code, message, detail, hint, position string) string {
	out := fmt.Sprintf("PostgreSQL error %s", code)
	if name, ok := sqlStateConditions[code]; ok {
		out += fmt.Sprintf(" (%s)", name)
	}
	out += ": " + message

	if detail != "" {
		out += fmt.Sprintf(" | Detail: %s", detail)
	}
	if hint != "" {
		out += fmt.Sprintf(" | Hint: %s", hint)
	}
	if position != "" {
		out += fmt.Sprintf(" | Position: %s", position)
	}
	return out
}

// SQLState extracts the SQLSTATE code from a driver error, if present
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// GetHTTPStatusCode returns the HTTP status code for an error kind
func GetHTTPStatusCode(kind Kind) int {
	switch kind {
	case KindDriverUnavailable:
		return HTTPStatusDriverUnavailable
	case KindUnsupportedFeature:
		return HTTPStatusUnsupportedFeature
	case KindConnectionFailed:
		return HTTPStatusConnectionFailed
	case KindQueryFileNotFound:
		return HTTPStatusQueryFileNotFound
	case KindQueryExecutionFailed:
		return HTTPStatusQueryExecutionFailed
	case KindConfigurationError:
		return HTTPStatusConfigurationError
	default:
		return HTTPStatusInternalError
	}
}
