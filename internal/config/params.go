package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vibesql/pgquery/internal/postgres"
	"github.com/vibesql/pgquery/internal/query"
)

// Params is one invocation as written in a params file or posted to the
// HTTP front end. Field names follow the postgresql_query module options.
type Params struct {
	Database    string `yaml:"db" json:"db"`
	Port        int    `yaml:"port" json:"port"`
	User        string `yaml:"login_user" json:"login_user"`
	Password    string `yaml:"login_password" json:"login_password"`
	Host        string `yaml:"login_host" json:"login_host"`
	UnixSocket  string `yaml:"login_unix_socket" json:"login_unix_socket"`
	SSLMode     string `yaml:"ssl_mode" json:"ssl_mode"`
	SSLRootCert string `yaml:"ssl_rootcert" json:"ssl_rootcert"`
	Driver      string `yaml:"driver" json:"driver"`

	Query          string         `yaml:"query" json:"query"`
	PositionalArgs []any          `yaml:"positional_args" json:"positional_args"`
	NamedArgs      map[string]any `yaml:"named_args" json:"named_args"`
	Fact           string         `yaml:"fact" json:"fact"`
	CheckMode      bool           `yaml:"check_mode" json:"check_mode"`
}

// LoadParams reads a params file. JSON files are accepted as YAML.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, postgres.Wrap(postgres.KindConfigurationError,
			fmt.Sprintf("Unable to read params file '%s'", path), err)
	}
	return ParseParams(data)
}

// ParseParams decodes params from YAML or JSON. Unknown keys are rejected.
func ParseParams(data []byte) (*Params, error) {
	p := &Params{}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, postgres.Wrap(postgres.KindConfigurationError, "Invalid params file", err)
	}
	return p, nil
}

// Connection maps the login options onto a connection config with the
// module defaults applied.
func (p *Params) Connection() (postgres.ConnectionConfig, error) {
	mode, err := postgres.ParseSSLMode(p.SSLMode)
	if err != nil {
		return postgres.ConnectionConfig{}, err
	}

	cfg := postgres.ConnectionConfig{
		Host:        p.Host,
		Port:        p.Port,
		User:        p.User,
		Password:    p.Password,
		Database:    p.Database,
		UnixSocket:  p.UnixSocket,
		SSLMode:     mode,
		SSLRootCert: p.SSLRootCert,
		Driver:      p.Driver,
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return postgres.ConnectionConfig{}, err
	}
	return cfg, nil
}

// Request returns the statement half of the invocation.
func (p *Params) Request() query.ExecutionRequest {
	return query.ExecutionRequest{
		Query:          p.Query,
		PositionalArgs: p.PositionalArgs,
		NamedArgs:      p.NamedArgs,
		Fact:           p.Fact,
	}
}
