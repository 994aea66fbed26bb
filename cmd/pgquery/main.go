// Package main implements the pgquery CLI: run one PostgreSQL statement,
// or serve the same operation over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vibesql/pgquery/internal/config"
	"github.com/vibesql/pgquery/internal/postgres"
	"github.com/vibesql/pgquery/internal/query"
	"github.com/vibesql/pgquery/internal/server"
	"github.com/vibesql/pgquery/internal/version"
)

// errInvocationFailed signals that the failure report was already printed
var errInvocationFailed = errors.New("invocation failed")

// app carries what the commands share. Tests swap the executor.
type app struct {
	stdout       io.Writer
	stderr       io.Writer
	capabilities *postgres.Capabilities
	newExecutor  func(caps *postgres.Capabilities, logger *slog.Logger) query.QueryExecutor
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:       stdout,
		stderr:       stderr,
		capabilities: postgres.DetectCapabilities(),
		newExecutor: func(caps *postgres.Capabilities, logger *slog.Logger) query.QueryExecutor {
			return query.NewExecutor(caps, logger)
		},
	}
}

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.rootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvocationFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pgquery",
		Short: "Run a single PostgreSQL statement",
		Long: `pgquery runs one SQL statement against PostgreSQL in its own transaction
and reports the rows it returned and whether it changed anything.`,
		Version:       version.Get().Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.AddCommand(a.runCmd())
	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.versionCmd())

	return rootCmd
}

// runFlags are the command-line overrides for a params file
type runFlags struct {
	paramsFile  string
	db          string
	host        string
	port        int
	user        string
	password    string
	unixSocket  string
	sslMode     string
	sslRootCert string
	query       string
	args        []string
	namedArgs   []string
	fact        string
	check       bool
	driver      string
}

func (a *app) runCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one statement and print the result as JSON",
		Long: `Execute one statement and print the result as JSON on stdout.

Parameters come from a YAML or JSON params file, overridden by flags.
A query ending in .sql is read from that file.

Examples:
  pgquery run --db acme --query "SELECT * FROM users WHERE id = %s" --arg 42
  pgquery run --params invocation.yml --check
  pgquery run --db acme --query scripts/cleanup.sql --named-arg days=30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runInvocation(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.paramsFile, "params", "", "YAML or JSON params file")
	flags.StringVar(&f.db, "db", "", "Database name")
	flags.StringVar(&f.host, "host", "", "Database host (empty uses the local socket)")
	flags.IntVar(&f.port, "port", postgres.DefaultPort, "Database port")
	flags.StringVar(&f.user, "user", postgres.DefaultUser, "Login user")
	flags.StringVar(&f.password, "password", "", "Login password")
	flags.StringVar(&f.unixSocket, "unix-socket", "", "Unix socket directory used when host is local")
	flags.StringVar(&f.sslMode, "ssl-mode", string(postgres.DefaultSSLMode), "SSL mode: disable, allow, prefer, require, verify-ca, verify-full (the postgres driver lacks allow and prefer)")
	flags.StringVar(&f.sslRootCert, "ssl-rootcert", "", "Root certificate file used to verify the server")
	flags.StringVar(&f.query, "query", "", "SQL statement or path to a .sql file")
	flags.StringArrayVar(&f.args, "arg", nil, "Positional argument for %s placeholders (repeatable)")
	flags.StringArrayVar(&f.namedArgs, "named-arg", nil, "Named argument key=value for %(key)s placeholders (repeatable)")
	flags.StringVar(&f.fact, "fact", "", "Publish result rows under this key")
	flags.BoolVar(&f.check, "check", false, "Run the statement and roll it back")
	flags.StringVar(&f.driver, "driver", postgres.DefaultDriver, "Client library: pgx or postgres (lib/pq, needs --ssl-mode other than allow or prefer)")

	return cmd
}

func (a *app) runInvocation(cmd *cobra.Command, f runFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg, a.stderr)

	params, err := resolveParams(cmd, f)
	if err != nil {
		return a.reportFailure(err)
	}

	conn, err := params.Connection()
	if err != nil {
		return a.reportFailure(err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
	}

	executor := a.newExecutor(a.capabilities, logger)
	result, err := executor.Execute(ctx, conn, params.Request(), params.CheckMode)
	if err != nil {
		return a.reportFailure(err)
	}

	return writeJSON(a.stdout, result)
}

// resolveParams loads the params file, if any, and applies every flag the
// user set explicitly on top of it.
func resolveParams(cmd *cobra.Command, f runFlags) (*config.Params, error) {
	params := &config.Params{}
	if f.paramsFile != "" {
		loaded, err := config.LoadParams(f.paramsFile)
		if err != nil {
			return nil, err
		}
		params = loaded
	}

	changed := cmd.Flags().Changed
	if changed("db") {
		params.Database = f.db
	}
	if changed("host") {
		params.Host = f.host
	}
	if changed("port") {
		params.Port = f.port
	}
	if changed("user") {
		params.User = f.user
	}
	if changed("password") {
		params.Password = f.password
	}
	if changed("unix-socket") {
		params.UnixSocket = f.unixSocket
	}
	if changed("ssl-mode") {
		params.SSLMode = f.sslMode
	}
	if changed("ssl-rootcert") {
		params.SSLRootCert = f.sslRootCert
	}
	if changed("query") {
		params.Query = f.query
	}
	if changed("fact") {
		params.Fact = f.fact
	}
	if changed("check") {
		params.CheckMode = f.check
	}
	if changed("driver") {
		params.Driver = f.driver
	}

	if changed("arg") {
		params.PositionalArgs = make([]any, len(f.args))
		for i, v := range f.args {
			params.PositionalArgs[i] = v
		}
	}
	if changed("named-arg") {
		params.NamedArgs = make(map[string]any, len(f.namedArgs))
		for _, kv := range f.namedArgs {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, postgres.NewError(
					postgres.KindConfigurationError,
					"Invalid named argument",
					fmt.Sprintf("expected key=value, got %q", kv),
				)
			}
			params.NamedArgs[k] = v
		}
	}

	return params, nil
}

// failure is the report printed when an invocation fails
type failure struct {
	Failed         bool   `json:"failed"`
	Kind           string `json:"kind"`
	Msg            string `json:"msg"`
	Detail         string `json:"detail,omitempty"`
	QueryArguments any    `json:"query_arguments,omitempty"`
}

func (a *app) reportFailure(err error) error {
	pgErr := postgres.AsError(err)
	report := failure{
		Failed:         true,
		Kind:           string(pgErr.Kind),
		Msg:            pgErr.Message,
		Detail:         pgErr.Detail,
		QueryArguments: pgErr.Args,
	}
	if werr := writeJSON(a.stdout, report); werr != nil {
		return werr
	}
	return errInvocationFailed
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /v1/execute over HTTP",
		Long: `Start the HTTP front end. Each request to POST /v1/execute is an independent
invocation with its own database connection. Settings come from PGQUERY_*
environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.SetupLogger(cfg, a.stderr)

			logger.Info("Starting pgquery",
				slog.Any("build", version.Get()),
				slog.String("drivers", strings.Join(a.capabilities.Names(), ",")),
			)

			executor := a.newExecutor(a.capabilities, logger)
			httpServer := server.NewServer(cfg, executor, a.capabilities.Names(), logger)

			if err := httpServer.Start(); err != nil {
				return fmt.Errorf("failed to start HTTP server: %w", err)
			}

			logger.Info("Press Ctrl+C to stop", slog.String("addr", httpServer.Addr()))
			httpServer.WaitForShutdown()

			logger.Info("Shutdown complete")
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get().WithDrivers(a.capabilities.Versions())
			if asJSON {
				return writeJSON(a.stdout, info)
			}
			_, err := fmt.Fprintln(a.stdout, info.Full())
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
