package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesql/pgquery/internal/postgres"
)

func TestParseParams_YAML(t *testing.T) {
	data := []byte(`
db: acme
login_user: app
login_password: secret
login_host: db.internal
port: 6432
ssl_mode: verify-full
ssl_rootcert: /etc/ssl/root.crt
query: SELECT * FROM some_table WHERE a_column=%s AND b_column=%s
positional_args:
  - first
  - 2
fact: rows
check_mode: true
driver: postgres
`)

	p, err := ParseParams(data)
	require.NoError(t, err)

	assert.Equal(t, "acme", p.Database)
	assert.Equal(t, 6432, p.Port)
	assert.Equal(t, []any{"first", 2}, p.PositionalArgs)
	assert.Nil(t, p.NamedArgs)
	assert.True(t, p.CheckMode)

	cfg, err := p.Connection()
	require.NoError(t, err)
	assert.Equal(t, postgres.ConnectionConfig{
		Host:        "db.internal",
		Port:        6432,
		User:        "app",
		Password:    "secret",
		Database:    "acme",
		SSLMode:     postgres.SSLModeVerifyFull,
		SSLRootCert: "/etc/ssl/root.crt",
		Driver:      postgres.DriverPQ,
	}, cfg)

	req := p.Request()
	assert.Equal(t, "rows", req.Fact)
	assert.Equal(t, p.Query, req.Query)
}

func TestParseParams_JSON(t *testing.T) {
	data := []byte(`{"db": "acme", "query": "SELECT %(x)s", "named_args": {"x": "a"}}`)

	p, err := ParseParams(data)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"x": "a"}, p.NamedArgs)
	assert.Nil(t, p.PositionalArgs)
}

func TestParseParams_UnknownKey(t *testing.T) {
	_, err := ParseParams([]byte("db: acme\nlogin_db: other\n"))
	require.Error(t, err)
	assert.Equal(t, postgres.KindConfigurationError, postgres.KindOf(err))
}

func TestParseParams_Empty(t *testing.T) {
	p, err := ParseParams([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, &Params{}, p)
}

func TestParams_ConnectionDefaults(t *testing.T) {
	p := &Params{Database: "acme"}

	cfg, err := p.Connection()
	require.NoError(t, err)

	assert.Equal(t, postgres.DefaultPort, cfg.Port)
	assert.Equal(t, postgres.DefaultUser, cfg.User)
	assert.Equal(t, postgres.SSLModePrefer, cfg.SSLMode)
	assert.Equal(t, postgres.DriverPgx, cfg.Driver)
	assert.Empty(t, cfg.Host)
}

func TestParams_ConnectionErrors(t *testing.T) {
	_, err := (&Params{Database: "acme", SSLMode: "sometimes"}).Connection()
	assert.Equal(t, postgres.KindConfigurationError, postgres.KindOf(err))

	_, err = (&Params{}).Connection()
	assert.Equal(t, postgres.KindConfigurationError, postgres.KindOf(err))
}

func TestLoadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yml")
	require.NoError(t, os.WriteFile(path, []byte("db: acme\nquery: SELECT 1\n"), 0o600))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", p.Query)

	_, err = LoadParams(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Equal(t, postgres.KindConfigurationError, postgres.KindOf(err))
}
