package query

import (
	"fmt"
	"os"
	"strings"

	"github.com/vibesql/pgquery/internal/postgres"
)

// IsScriptPath reports whether query names a SQL script file
func IsScriptPath(query string) bool {
	return strings.HasSuffix(strings.TrimSpace(query), postgres.ScriptSuffix)
}

// ResolveQuery returns the statement text for query. Script paths are read
// and stripped of leading and trailing newlines; anything else is used
// literally.
func ResolveQuery(query string) (string, error) {
	if !IsScriptPath(query) {
		return query, nil
	}

	path := strings.TrimSpace(query)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &postgres.Error{
			Kind:    postgres.KindQueryFileNotFound,
			Message: fmt.Sprintf("Unable to find '%s' in given path.", path),
			Detail:  err.Error(),
			Err:     err,
		}
	}

	return strings.Trim(string(data), "\n"), nil
}
