package postgres

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPort    = 5432
	DefaultUser    = "postgres"
	DefaultSSLMode = SSLModePrefer
	DefaultDriver  = DriverPgx

	// ScriptSuffix marks a query string as a path to a SQL file
	ScriptSuffix = ".sql"
)

// SSLMode is a libpq sslmode value
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModeAllow      SSLMode = "allow"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// SSLModes lists every recognized sslmode in libpq order
var SSLModes = []SSLMode{
	SSLModeDisable,
	SSLModeAllow,
	SSLModePrefer,
	SSLModeRequire,
	SSLModeVerifyCA,
	SSLModeVerifyFull,
}

// ParseSSLMode validates an sslmode string. An empty string yields the default.
func ParseSSLMode(s string) (SSLMode, error) {
	if s == "" {
		return DefaultSSLMode, nil
	}
	for _, m := range SSLModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", NewError(
		KindConfigurationError,
		"Invalid ssl_mode",
		fmt.Sprintf("ssl_mode %q is not one of disable, allow, prefer, require, verify-ca, verify-full", s),
	)
}

// ConnectionConfig holds everything needed to open a single connection
type ConnectionConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	UnixSocket  string
	SSLMode     SSLMode
	SSLRootCert string
	Driver      string
}

// WithDefaults returns a copy with unset fields replaced by their defaults.
// Host is left empty on purpose: an empty host means local socket resolution.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.SSLMode == "" {
		c.SSLMode = DefaultSSLMode
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	return c
}

// Validate checks the fields the caller must get right
func (c ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return NewError(
			KindConfigurationError,
			"Missing required field: db",
			"A database name is required",
		)
	}
	if c.Port < 0 || c.Port > 65535 {
		return NewError(
			KindConfigurationError,
			"Invalid port",
			fmt.Sprintf("port %d is outside 0-65535", c.Port),
		)
	}
	if c.SSLMode != "" {
		if _, err := ParseSSLMode(string(c.SSLMode)); err != nil {
			return err
		}
	}
	return nil
}

// BuildParams maps the non-empty configuration fields to driver connection
// parameters. When the resolved host is empty or "localhost" and a unix
// socket path is configured, the socket path becomes the host.
func BuildParams(c ConnectionConfig) map[string]string {
	params := make(map[string]string)

	set := func(key, value string) {
		if value != "" {
			params[key] = value
		}
	}

	set("host", c.Host)
	set("user", c.User)
	set("password", c.Password)
	if c.Port != 0 {
		params["port"] = strconv.Itoa(c.Port)
	}
	set("database", c.Database)
	set("sslmode", string(c.SSLMode))
	set("sslrootcert", c.SSLRootCert)

	host := params["host"]
	if (host == "" || host == "localhost") && c.UnixSocket != "" {
		params["host"] = c.UnixSocket
	}

	return params
}

// libpq spells the database keyword "dbname"
var keywordNames = map[string]string{
	"database": "dbname",
}

// ConnString renders connection parameters as a libpq keyword/value string
// understood by both pgx and lib/pq. Keys are sorted for stable output.
func ConnString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		keyword := k
		if renamed, ok := keywordNames[k]; ok {
			keyword = renamed
		}
		parts = append(parts, keyword+"="+quoteValue(params[k]))
	}
	return strings.Join(parts, " ")
}

// RedactedConnString is ConnString with the password masked, for logs
func RedactedConnString(params map[string]string) string {
	masked := make(map[string]string, len(params))
	for k, v := range params {
		if k == "password" {
			v = "********"
		}
		masked[k] = v
	}
	return ConnString(masked)
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t\n") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('\'')
	return b.String()
}
