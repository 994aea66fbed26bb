package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	_ "github.com/lib/pq"
)

var (
	leadingWord       = regexp.MustCompile(`^[A-Za-z]+`)
	singleLineComment = regexp.MustCompile(`--[^\n]*`)
	multiLineComment  = regexp.MustCompile(`/\*[\s\S]*?\*/`)
)

// Statements whose leading keyword produces a result set
var rowReturningVerbs = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"VALUES":  true,
	"TABLE":   true,
	"SHOW":    true,
	"EXPLAIN": true,
	"FETCH":   true,
}

// Verbs that can follow the CTEs of a WITH query
var primaryVerbs = map[string]bool{
	"SELECT": true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"MERGE":  true,
	"VALUES": true,
	"TABLE":  true,
}

// Verbs whose command tag carries a row count
var countedVerbs = map[string]bool{
	"SELECT": true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"MERGE":  true,
	"FETCH":  true,
	"MOVE":   true,
	"COPY":   true,
}

type sqlSession struct {
	db *sql.DB
	tx *sql.Tx
}

// OpenPQ connects through database/sql with lib/pq
func OpenPQ(ctx context.Context, dsn string) (Session, error) {
	db, err := sql.Open(DriverPQ, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return NewSQLSession(ctx, db)
}

// NewSQLSession begins a transaction on db. The session owns db and closes
// it on Close.
func NewSQLSession(ctx context.Context, db *sql.DB) (Session, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &sqlSession{db: db, tx: tx}, nil
}

// database/sql hides the server's command tag, so Run derives one from the
// statement's verb and the observed row count.
func (s *sqlSession) Run(ctx context.Context, query string, args []any) (*Outcome, error) {
	verb := StatementVerb(query)

	if rowReturningVerbs[verb] || hasReturning(query) {
		rows, err := s.tx.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		columns, results, err := parseRows(rows)
		if err != nil {
			return nil, err
		}

		n := int64(len(results))
		return &Outcome{
			Columns:      columns,
			Rows:         results,
			CommandTag:   commandTag(verb, n),
			RowsAffected: n,
		}, nil
	}

	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = 0
	}
	return &Outcome{
		CommandTag:   commandTag(verb, n),
		RowsAffected: n,
	}, nil
}

func parseRows(rows *sql.Rows) ([]string, []map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			// lib/pq hands back text-format values as []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, results, nil
}

func commandTag(verb string, n int64) string {
	switch verb {
	case "WITH", "VALUES", "TABLE":
		verb = "SELECT"
	case "":
		return ""
	}
	if !countedVerbs[verb] {
		return verb
	}
	if verb == "INSERT" {
		return fmt.Sprintf("INSERT 0 %d", n)
	}
	return fmt.Sprintf("%s %d", verb, n)
}

// LeadingKeyword returns the first SQL keyword of a statement, upper-cased,
// ignoring leading comments, whitespace and parentheses.
func LeadingKeyword(query string) string {
	q := stripComments(query)
	q = strings.TrimLeft(q, " \t\r\n(")
	return strings.ToUpper(leadingWord.FindString(q))
}

// StatementVerb returns the keyword naming the command a statement runs.
// For a WITH query that is the primary statement following the CTEs, so
// a writable CTE reports INSERT, UPDATE, DELETE or MERGE.
func StatementVerb(query string) string {
	verb := LeadingKeyword(query)
	if verb != "WITH" {
		return verb
	}

	words := topLevelWords(query)
	for i := 1; i < len(words); i++ {
		w := words[i]
		if !primaryVerbs[w] {
			continue
		}
		// INSERT, UPDATE, DELETE and MERGE are unreserved and may name a CTE
		if i+1 < len(words) && words[i+1] == "AS" {
			continue
		}
		return w
	}
	return "SELECT"
}

// hasReturning reports whether the primary statement has a RETURNING
// clause. One inside a CTE body does not count.
func hasReturning(query string) bool {
	return slices.Contains(topLevelWords(query), "RETURNING")
}

// topLevelWords returns the upper-cased words of query that sit outside
// parentheses, literals, quoted identifiers and comments.
func topLevelWords(query string) []string {
	var words []string
	depth := 0
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return words
			}
			i += end + 1
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return words
			}
			i += end + 4
		case c == '\'':
			escapes := i > 0 && (query[i-1] == 'E' || query[i-1] == 'e') && (i == 1 || !isWordPart(query[i-2]))
			i = skipQuoted(query, i, c, escapes)
		case c == '"':
			i = skipQuoted(query, i, c, false)
		case c == '$':
			i = skipDollarQuoted(query, i)
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case isWordStart(c):
			j := i + 1
			for j < len(query) && isWordPart(query[j]) {
				j++
			}
			if depth == 0 {
				words = append(words, strings.ToUpper(query[i:j]))
			}
			i = j
		default:
			i++
		}
	}
	return words
}

// skipQuoted returns the index just past the quoted section opening at i
func skipQuoted(query string, i int, quote byte, escapes bool) int {
	for j := i + 1; j < len(query); j++ {
		switch query[j] {
		case '\\':
			if escapes {
				j++
			}
		case quote:
			if j+1 < len(query) && query[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(query)
}

// skipDollarQuoted returns the index just past a $tag$...$tag$ body opening
// at i, or i+1 when the dollar sign does not open one.
func skipDollarQuoted(query string, i int) int {
	j := i + 1
	if j < len(query) && query[j] >= '0' && query[j] <= '9' {
		return j
	}
	for j < len(query) && query[j] != '$' && isWordPart(query[j]) {
		j++
	}
	if j >= len(query) || query[j] != '$' {
		return i + 1
	}
	tag := query[i : j+1]
	end := strings.Index(query[j+1:], tag)
	if end < 0 {
		return len(query)
	}
	return j + 1 + end + len(tag)
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c >= 0x80
}

func isWordPart(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9') || c == '$'
}

func stripComments(query string) string {
	query = singleLineComment.ReplaceAllString(query, "")
	return multiLineComment.ReplaceAllString(query, "")
}

func (s *sqlSession) ServerVersion(ctx context.Context) (string, error) {
	var version string
	if err := s.tx.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

func (s *sqlSession) Commit(ctx context.Context) error {
	return s.tx.Commit()
}

func (s *sqlSession) Rollback(ctx context.Context) error {
	return s.tx.Rollback()
}

func (s *sqlSession) Close(ctx context.Context) error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
