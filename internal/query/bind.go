package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMappingRequired is returned when a query uses %(name)s but positional arguments were given
	ErrMappingRequired = errors.New("named placeholder requires named_args")
	// ErrSequenceRequired is returned when a query uses %s but named arguments were given
	ErrSequenceRequired = errors.New("positional placeholder requires positional_args")
)

// Bind prepares a statement and its arguments for the driver.
//
// Placeholders use the pyformat style: %s for positional arguments,
// %(name)s for named arguments and %% for a literal percent sign. They are
// rewritten into PostgreSQL $n parameters; a name used more than once binds a
// single parameter. Quoted literals, quoted identifiers, comments and
// dollar-quoted bodies are copied as-is apart from %% unescaping.
//
// With no arguments the statement is returned verbatim. Positional
// arguments with no %s placeholders are passed through, so native $n
// parameters keep working.
func Bind(query string, positional []any, named map[string]any) (string, []any, error) {
	switch {
	case positional != nil:
		return bindPositional(query, positional)
	case named != nil:
		return bindNamed(query, named)
	default:
		return query, nil, nil
	}
}

func bindPositional(query string, args []any) (string, []any, error) {
	count := 0
	out, err := rewritePlaceholders(query, func(name string) (string, error) {
		if name != "" {
			return "", fmt.Errorf("%w: %%(%s)s", ErrMappingRequired, name)
		}
		count++
		return "$" + strconv.Itoa(count), nil
	})
	if err != nil {
		return "", nil, err
	}

	bound := NormalizeArgs(args)
	if count == 0 {
		return out, bound, nil
	}
	if count > len(args) {
		return "", nil, fmt.Errorf("not enough arguments for query: %d placeholders, %d arguments", count, len(args))
	}
	if count < len(args) {
		return "", nil, fmt.Errorf("not all arguments converted: %d placeholders, %d arguments", count, len(args))
	}
	return out, bound, nil
}

func bindNamed(query string, params map[string]any) (string, []any, error) {
	index := make(map[string]int)
	var args []any

	out, err := rewritePlaceholders(query, func(name string) (string, error) {
		if name == "" {
			return "", ErrSequenceRequired
		}
		if n, ok := index[name]; ok {
			return "$" + strconv.Itoa(n), nil
		}
		v, ok := params[name]
		if !ok {
			return "", fmt.Errorf("missing value for %%(%s)s", name)
		}
		args = append(args, NormalizeArg(v))
		index[name] = len(args)
		return "$" + strconv.Itoa(len(args)), nil
	})
	if err != nil {
		return "", nil, err
	}
	return out, args, nil
}

// rewritePlaceholders walks query and calls replace for every placeholder
// outside quoted regions. name is empty for %s.
func rewritePlaceholders(query string, replace func(name string) (string, error)) (string, error) {
	var b strings.Builder
	b.Grow(len(query) + 8)

	i := 0
	for i < len(query) {
		c := query[i]
		switch c {
		case '\'':
			j := skipQuoted(query, i+1, '\'', isEscapeString(query, i))
			b.WriteString(unescapePercent(query[i:j]))
			i = j
			continue
		case '"':
			j := skipQuoted(query, i+1, '"', false)
			b.WriteString(unescapePercent(query[i:j]))
			i = j
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				j := skipLineComment(query, i+2)
				b.WriteString(unescapePercent(query[i:j]))
				i = j
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j := skipBlockComment(query, i+2)
				b.WriteString(unescapePercent(query[i:j]))
				i = j
				continue
			}
		case '$':
			if j, ok := skipDollarQuoted(query, i); ok {
				b.WriteString(unescapePercent(query[i:j]))
				i = j
				continue
			}
		case '%':
			if i+1 < len(query) {
				switch query[i+1] {
				case '%':
					b.WriteByte('%')
					i += 2
					continue
				case 's':
					repl, err := replace("")
					if err != nil {
						return "", err
					}
					b.WriteString(repl)
					i += 2
					continue
				case '(':
					if end := strings.Index(query[i+2:], ")s"); end > 0 {
						name := query[i+2 : i+2+end]
						if !strings.ContainsAny(name, "()%") {
							repl, err := replace(name)
							if err != nil {
								return "", err
							}
							b.WriteString(repl)
							i += 2 + end + 2
							continue
						}
					}
				}
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), nil
}

func unescapePercent(s string) string {
	return strings.ReplaceAll(s, "%%", "%")
}

// isEscapeString reports whether the quote at i opens an E'...' literal
func isEscapeString(query string, i int) bool {
	if i == 0 || (query[i-1] != 'E' && query[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(query[i-2])
}

func skipQuoted(query string, from int, quote byte, backslash bool) int {
	for j := from; j < len(query); j++ {
		switch query[j] {
		case '\\':
			if backslash {
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

func skipLineComment(query string, from int) int {
	if j := strings.IndexByte(query[from:], '\n'); j >= 0 {
		return from + j + 1
	}
	return len(query)
}

func skipBlockComment(query string, from int) int {
	if j := strings.Index(query[from:], "*/"); j >= 0 {
		return from + j + 2
	}
	return len(query)
}

// skipDollarQuoted recognizes $$...$$ and $tag$...$tag$ bodies starting at
// i. Positional parameters such as $1 are not dollar quotes.
func skipDollarQuoted(query string, i int) (int, bool) {
	if i > 0 && isIdentByte(query[i-1]) {
		return 0, false
	}
	j := i + 1
	for j < len(query) {
		c := query[j]
		if c == '_' || isLetter(c) || (j > i+1 && isDigit(c)) {
			j++
			continue
		}
		break
	}
	if j >= len(query) || query[j] != '$' {
		return 0, false
	}
	tag := query[i : j+1]
	body := j + 1
	if end := strings.Index(query[body:], tag); end >= 0 {
		return body + end + len(tag), true
	}
	return len(query), true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentByte(c byte) bool {
	return c == '_' || isLetter(c) || isDigit(c)
}

// NormalizeArgs applies NormalizeArg to every value
func NormalizeArgs(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = NormalizeArg(v)
	}
	return out
}

// NormalizeArg narrows a decoded argument to one of string, int64, float64,
// bool, nil or []byte where possible. Other values pass through to the
// driver unchanged.
func NormalizeArg(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
