package query

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBind_NoArguments(t *testing.T) {
	query := "SELECT '%s', 10 % 3"

	got, args, err := Bind(query, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, query, got, "queries without arguments are sent verbatim")
	assert.Nil(t, args)
}

func TestBind_Positional(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		args      []any
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "in order",
			query:     "SELECT * FROM a_table WHERE a_column=%s AND b_column=%s",
			args:      []any{"a", "b"},
			wantQuery: "SELECT * FROM a_table WHERE a_column=$1 AND b_column=$2",
			wantArgs:  []any{"a", "b"},
		},
		{
			name:      "literal percent",
			query:     "SELECT * FROM t WHERE name LIKE 'ab%%' AND id = %s",
			args:      []any{1},
			wantQuery: "SELECT * FROM t WHERE name LIKE 'ab%' AND id = $1",
			wantArgs:  []any{int64(1)},
		},
		{
			name:      "placeholder inside literal untouched",
			query:     "SELECT '%s' AS raw, %s AS bound",
			args:      []any{"x"},
			wantQuery: "SELECT '%s' AS raw, $1 AS bound",
			wantArgs:  []any{"x"},
		},
		{
			name:      "comments and identifiers skipped",
			query:     "SELECT \"col%s\" -- %s\nFROM t /* %s */ WHERE a = %s",
			args:      []any{true},
			wantQuery: "SELECT \"col%s\" -- %s\nFROM t /* %s */ WHERE a = $1",
			wantArgs:  []any{true},
		},
		{
			name:      "dollar quoted body skipped",
			query:     "SELECT $body$ %s $body$, %s",
			args:      []any{nil},
			wantQuery: "SELECT $body$ %s $body$, $1",
			wantArgs:  []any{nil},
		},
		{
			name:      "native parameters pass through",
			query:     "SELECT * FROM t WHERE a = $1 AND b = $2",
			args:      []any{"a", 2},
			wantQuery: "SELECT * FROM t WHERE a = $1 AND b = $2",
			wantArgs:  []any{"a", int64(2)},
		},
		{
			name:      "escape string with backslash quote",
			query:     `SELECT E'it\'s %s', %s`,
			args:      []any{"v"},
			wantQuery: `SELECT E'it\'s %s', $1`,
			wantArgs:  []any{"v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := Bind(tt.query, tt.args, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBind_PositionalMismatch(t *testing.T) {
	_, _, err := Bind("SELECT %s, %s", []any{"a"}, nil)
	assert.ErrorContains(t, err, "not enough arguments")

	_, _, err = Bind("SELECT %s", []any{"a", "b"}, nil)
	assert.ErrorContains(t, err, "not all arguments converted")

	_, _, err = Bind("SELECT %(x)s", []any{"a"}, nil)
	assert.True(t, errors.Is(err, ErrMappingRequired))
}

func TestBind_Named(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		params    map[string]any
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "single",
			query:     "SELECT * FROM t WHERE a = %(x)s",
			params:    map[string]any{"x": "a"},
			wantQuery: "SELECT * FROM t WHERE a = $1",
			wantArgs:  []any{"a"},
		},
		{
			name:      "order of first use",
			query:     "SELECT * FROM some_table WHERE a_column=%(a_value)s AND b_column=%(b_value)s",
			params:    map[string]any{"b_value": "two", "a_value": "one"},
			wantQuery: "SELECT * FROM some_table WHERE a_column=$1 AND b_column=$2",
			wantArgs:  []any{"one", "two"},
		},
		{
			name:      "repeated name binds once",
			query:     "SELECT %(id)s, %(name)s, %(id)s",
			params:    map[string]any{"id": 7, "name": "n"},
			wantQuery: "SELECT $1, $2, $1",
			wantArgs:  []any{int64(7), "n"},
		},
		{
			name:      "unused keys ignored",
			query:     "SELECT %(a)s",
			params:    map[string]any{"a": 1.5, "unused": "x"},
			wantQuery: "SELECT $1",
			wantArgs:  []any{1.5},
		},
		{
			name:      "cast after placeholder",
			query:     "SELECT %(d)s::date",
			params:    map[string]any{"d": "2024-01-01"},
			wantQuery: "SELECT $1::date",
			wantArgs:  []any{"2024-01-01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := Bind(tt.query, nil, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, got)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBind_NamedErrors(t *testing.T) {
	_, _, err := Bind("SELECT %(missing)s", nil, map[string]any{"x": 1})
	assert.ErrorContains(t, err, "missing value for %(missing)s")

	_, _, err = Bind("SELECT %s", nil, map[string]any{"x": 1})
	assert.True(t, errors.Is(err, ErrSequenceRequired))
}

func TestSkipDollarQuoted(t *testing.T) {
	tests := []struct {
		query  string
		at     int
		wantOK bool
		wantAt int
	}{
		{"$$abc$$ rest", 0, true, 7},
		{"$fn$ body $fn$", 0, true, 14},
		{"$1", 0, false, 0},
		{"$$unterminated", 0, true, 14},
		{"a$b$", 1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			end, ok := skipDollarQuoted(tt.query, tt.at)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantAt, end)
			}
		})
	}
}

func TestNormalizeArg(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 5, int64(5)},
		{"int32", int32(-3), int64(-3)},
		{"float32", float32(0.5), float64(0.5)},
		{"json integer", json.Number("42"), int64(42)},
		{"json float", json.Number("4.25"), 4.25},
		{"string", "s", "s"},
		{"bool", true, true},
		{"nil", nil, nil},
		{"bytes", []byte("b"), []byte("b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArg(tt.in))
		})
	}
}
