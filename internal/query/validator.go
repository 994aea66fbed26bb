package query

import (
	"strings"

	"github.com/vibesql/pgquery/internal/postgres"
)

// ExecutionRequest is the statement half of an invocation. At most one of
// PositionalArgs and NamedArgs may be non-nil; nil means "not supplied".
type ExecutionRequest struct {
	// Query is literal SQL or a path ending in .sql
	Query          string
	PositionalArgs []any
	NamedArgs      map[string]any
	// Fact names the key the caller publishes result rows under
	Fact string
}

// Arguments returns whichever argument set was supplied, or nil
func (r ExecutionRequest) Arguments() any {
	if r.PositionalArgs != nil {
		return r.PositionalArgs
	}
	if r.NamedArgs != nil {
		return r.NamedArgs
	}
	return nil
}

// ValidateRequest checks the request's preconditions
func ValidateRequest(r ExecutionRequest) error {
	if strings.TrimSpace(r.Query) == "" {
		return postgres.NewError(
			postgres.KindConfigurationError,
			"Missing required field: query",
			"The 'query' field is required and cannot be empty",
		)
	}

	if r.PositionalArgs != nil && r.NamedArgs != nil {
		return postgres.NewError(
			postgres.KindConfigurationError,
			"parameters are mutually exclusive: positional_args|named_args",
			"Supply either positional_args or named_args, not both",
		)
	}

	return nil
}
