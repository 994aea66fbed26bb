package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/vibesql/pgquery/internal/postgres"
)

// Executor runs one statement per invocation on its own connection
type Executor struct {
	capabilities *postgres.Capabilities
	logger       *slog.Logger
}

// NewExecutor creates an executor bound to the drivers detected at startup
func NewExecutor(capabilities *postgres.Capabilities, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		capabilities: capabilities,
		logger:       logger,
	}
}

// Execute connects, runs request's statement and finalizes the transaction:
// a mutating statement is committed, or rolled back when checkMode is set.
// The connection is closed on every path once it has been opened.
func (e *Executor) Execute(ctx context.Context, config postgres.ConnectionConfig, request ExecutionRequest, checkMode bool) (result *ExecutionResult, err error) {
	startTime := time.Now()

	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateRequest(request); err != nil {
		return nil, err
	}

	if e.capabilities == nil {
		return nil, postgres.NewError(
			postgres.KindDriverUnavailable,
			"no PostgreSQL client library is available",
			"",
		)
	}
	driver, err := e.capabilities.Ensure(config)
	if err != nil {
		return nil, err
	}

	sess, err := postgres.Open(ctx, driver, config, e.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			e.logger.Error("Failed to close database connection", slog.String("error", cerr.Error()))
		}
	}()

	statement, err := ResolveQuery(request.Query)
	if err != nil {
		return nil, err
	}

	sqlText, args, err := Bind(statement, request.PositionalArgs, request.NamedArgs)
	if err != nil {
		return nil, &postgres.Error{
			Kind:    postgres.KindQueryExecutionFailed,
			Message: "Unable to execute query",
			Detail:  err.Error(),
			Args:    request.Arguments(),
			Err:     err,
		}
	}

	e.logger.Debug("Executing query",
		slog.String("query", truncate(sqlText, 100)),
		slog.Int("args", len(args)),
		slog.Bool("check_mode", checkMode),
	)

	outcome, err := sess.Run(ctx, sqlText, args)
	if err != nil {
		execErr := postgres.Wrap(postgres.KindQueryExecutionFailed, "Unable to execute query", err)
		execErr.Args = request.Arguments()
		return nil, execErr
	}

	result = buildResult(outcome, request.Fact)
	result.Query = statement
	result.CheckMode = checkMode

	if err := e.finalize(ctx, sess, result.Changed, checkMode); err != nil {
		return nil, err
	}

	e.logger.Info("Query executed",
		slog.String("status", result.StatusMessage),
		slog.Bool("changed", result.Changed),
		slog.Int("row_count", result.RowCount),
		slog.Bool("check_mode", checkMode),
		slog.Duration("duration", time.Since(startTime)),
	)

	return result, nil
}

// finalize commits a mutation, rolls it back in check mode, and discards
// the transaction of a read-only statement.
func (e *Executor) finalize(ctx context.Context, sess postgres.Session, changed, checkMode bool) error {
	if changed && !checkMode {
		if err := sess.Commit(ctx); err != nil {
			return postgres.Wrap(postgres.KindQueryExecutionFailed, "Unable to commit transaction", err)
		}
		return nil
	}

	if err := sess.Rollback(ctx); err != nil {
		return postgres.Wrap(postgres.KindQueryExecutionFailed, "Unable to roll back transaction", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
