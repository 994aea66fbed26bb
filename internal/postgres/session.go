package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Minimum server version that understands sslrootcert
const (
	MinSSLRootCertServerMajor = 8
	MinSSLRootCertServerMinor = 4
)

// Outcome is what a single statement produced
type Outcome struct {
	Columns      []string
	Rows         []map[string]any
	CommandTag   string
	RowsAffected int64
}

// Session is one open connection with one open transaction
type Session interface {
	// Run executes a single statement inside the transaction
	Run(ctx context.Context, sql string, args []any) (*Outcome, error)
	// ServerVersion reports the server_version setting
	ServerVersion(ctx context.Context) (string, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Close discards any unfinished transaction and closes the connection
	Close(ctx context.Context) error
}

// OpenFunc opens a session from a libpq keyword/value connection string
type OpenFunc func(ctx context.Context, dsn string) (Session, error)

// Open assembles connection parameters for cfg and opens a session with the
// given driver. Connection errors are classified as ConnectionFailed, or as
// UnsupportedFeature when the server rejected sslrootcert.
func Open(ctx context.Context, driver DriverInfo, cfg ConnectionConfig, logger *slog.Logger) (Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	params := BuildParams(cfg)

	logger.Debug("Opening PostgreSQL connection",
		slog.String("driver", driver.Name),
		slog.String("dsn", RedactedConnString(params)),
	)

	sess, err := driver.Open(ctx, ConnString(params))
	if err != nil {
		return nil, classifyConnectError(err)
	}

	if cfg.SSLRootCert != "" {
		version, err := sess.ServerVersion(ctx)
		if err != nil {
			logger.Warn("Could not determine server version", slog.String("error", err.Error()))
		} else if !ServerSupportsSSLRootCert(version) {
			if cerr := sess.Close(ctx); cerr != nil {
				logger.Error("Failed to close connection", slog.String("error", cerr.Error()))
			}
			return nil, NewError(
				KindUnsupportedFeature,
				sslRootCertServerMessage(),
				fmt.Sprintf("server reports version %s", version),
			)
		}
	}

	return sess, nil
}

func classifyConnectError(err error) *Error {
	if serverRejectedSSLRootCert(err) {
		return Wrap(KindUnsupportedFeature, sslRootCertServerMessage(), err)
	}
	return Wrap(KindConnectionFailed, "unable to connect to database", err)
}

// serverRejectedSSLRootCert reports whether err came back from the server
// and names sslrootcert. Client side failures, such as an unreadable CA
// file, also mention the parameter but are connection failures.
func serverRejectedSSLRootCert(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.Contains(pgErr.Message, "sslrootcert")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(pqErr.Message, "sslrootcert")
	}
	return false
}

func sslRootCertServerMessage() string {
	return fmt.Sprintf("PostgreSQL server must be at least version %d.%d to support sslrootcert",
		MinSSLRootCertServerMajor, MinSSLRootCertServerMinor)
}

var serverVersionPattern = regexp.MustCompile(`^\s*(\d+)(?:\.(\d+))?`)

// ServerSupportsSSLRootCert reports whether a server_version string is at
// least 8.4. Unparseable versions are assumed to be recent.
func ServerSupportsSSLRootCert(version string) bool {
	m := serverVersionPattern.FindStringSubmatch(version)
	if m == nil {
		return true
	}
	major, _ := strconv.Atoi(m[1])
	minor := 0
	if m[2] != "" {
		minor, _ = strconv.Atoi(m[2])
	}
	if major != MinSSLRootCertServerMajor {
		return major > MinSSLRootCertServerMajor
	}
	return minor >= MinSSLRootCertServerMinor
}
