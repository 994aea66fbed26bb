package query

import (
	"context"

	"github.com/vibesql/pgquery/internal/postgres"
)

// QueryExecutor defines the interface for running one invocation
type QueryExecutor interface {
	Execute(ctx context.Context, config postgres.ConnectionConfig, request ExecutionRequest, checkMode bool) (*ExecutionResult, error)
}

// Ensure Executor implements QueryExecutor
var _ QueryExecutor = (*Executor)(nil)
