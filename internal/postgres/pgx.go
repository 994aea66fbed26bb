package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type pgxSession struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

// OpenPgx connects with pgx and begins the invocation's transaction
func OpenPgx(ctx context.Context, dsn string) (Session, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// One statement per connection: let the server describe parameter
	// types without caching a prepared statement.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeDescribeExec

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	return &pgxSession{conn: conn, tx: tx}, nil
}

func (s *pgxSession) Run(ctx context.Context, sql string, args []any) (*Outcome, error) {
	rows, err := s.tx.Query(ctx, sql, queryArgs(args)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	// The command tag is only final once the result set is closed
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag := rows.CommandTag()
	return &Outcome{
		Columns:      columns,
		Rows:         results,
		CommandTag:   tag.String(),
		RowsAffected: tag.RowsAffected(),
	}, nil
}

// queryArgs switches statements with bound values to the simple protocol,
// where pgx interpolates them client side. Utility statements such as SET
// or ALTER ROLE ... PASSWORD accept no server-side parameters.
func queryArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	return append([]any{pgx.QueryExecModeSimpleProtocol}, args...)
}

func (s *pgxSession) ServerVersion(ctx context.Context) (string, error) {
	return s.conn.PgConn().ParameterStatus("server_version"), nil
}

func (s *pgxSession) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *pgxSession) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

func (s *pgxSession) Close(ctx context.Context) error {
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		_ = s.conn.Close(ctx)
		return err
	}
	return s.conn.Close(ctx)
}
