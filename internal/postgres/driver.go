package postgres

import (
	"database/sql"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Driver names accepted in ConnectionConfig.Driver
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// DriverInfo describes one client library available to the process
type DriverInfo struct {
	Name    string
	Module  string
	Version string
	// SSLModes lists the sslmode values the library can negotiate
	SSLModes []SSLMode
	// MinSSLRootCertVersion is the first library version honoring sslrootcert
	MinSSLRootCertVersion string
	Open                  OpenFunc
}

// SupportsSSLMode reports whether the driver can negotiate mode
func (d DriverInfo) SupportsSSLMode(mode SSLMode) bool {
	return slices.Contains(d.SSLModes, mode)
}

// SupportsSSLRootCert compares the detected version against the fixed
// minimum. Unknown or development versions pass.
func (d DriverInfo) SupportsSSLRootCert() bool {
	if d.MinSSLRootCertVersion == "" {
		return true
	}
	v := canonicalVersion(d.Version)
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, canonicalVersion(d.MinSSLRootCertVersion)) >= 0
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Capabilities is the set of drivers detected at startup
type Capabilities struct {
	drivers map[string]DriverInfo
}

// NewCapabilities builds a capability set from explicit driver descriptions
func NewCapabilities(drivers ...DriverInfo) *Capabilities {
	c := &Capabilities{drivers: make(map[string]DriverInfo, len(drivers))}
	for _, d := range drivers {
		c.drivers[d.Name] = d
	}
	return c
}

// DetectCapabilities inspects the running binary for the client libraries
// it was built with. lib/pq only counts when registered with database/sql.
func DetectCapabilities() *Capabilities {
	versions := moduleVersions()

	drivers := []DriverInfo{
		{
			Name:                  DriverPgx,
			Module:                pgxModule,
			Version:               versions[pgxModule],
			SSLModes:              SSLModes,
			MinSSLRootCertVersion: "v4.0.0",
			Open:                  OpenPgx,
		},
	}

	if slices.Contains(sql.Drivers(), DriverPQ) {
		drivers = append(drivers, DriverInfo{
			Name:    DriverPQ,
			Module:  pqModule,
			Version: versions[pqModule],
			SSLModes: []SSLMode{
				SSLModeDisable,
				SSLModeRequire,
				SSLModeVerifyCA,
				SSLModeVerifyFull,
			},
			MinSSLRootCertVersion: "v1.0.0",
			Open:                  OpenPQ,
		})
	}

	return NewCapabilities(drivers...)
}

const (
	pgxModule = "github.com/jackc/pgx/v5"
	pqModule  = "github.com/lib/pq"
)

func moduleVersions() map[string]string {
	out := make(map[string]string)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			out[dep.Path] = dep.Replace.Version
			continue
		}
		out[dep.Path] = dep.Version
	}
	return out
}

// Driver looks up a driver by name
func (c *Capabilities) Driver(name string) (DriverInfo, bool) {
	d, ok := c.drivers[name]
	return d, ok
}

// Names returns the available driver names, sorted
func (c *Capabilities) Names() []string {
	names := make([]string, 0, len(c.drivers))
	for n := range c.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Versions maps each available driver to its detected module version
func (c *Capabilities) Versions() map[string]string {
	out := make(map[string]string, len(c.drivers))
	for n, d := range c.drivers {
		out[n] = d.Version
	}
	return out
}

// Ensure checks that cfg can be served by an available driver
func (c *Capabilities) Ensure(cfg ConnectionConfig) (DriverInfo, error) {
	name := cfg.Driver
	if name == "" {
		name = DefaultDriver
	}

	d, ok := c.Driver(name)
	if !ok || d.Open == nil {
		return DriverInfo{}, NewError(
			KindDriverUnavailable,
			fmt.Sprintf("the PostgreSQL client library %q is required", name),
			fmt.Sprintf("available drivers: %s", strings.Join(c.Names(), ", ")),
		)
	}

	if cfg.SSLMode != "" && !d.SupportsSSLMode(cfg.SSLMode) {
		return DriverInfo{}, NewError(
			KindUnsupportedFeature,
			fmt.Sprintf("driver %s does not support sslmode=%s", d.Name, cfg.SSLMode),
			fmt.Sprintf("set ssl_mode (--ssl-mode) to one of: %s", joinModes(d.SSLModes)),
		)
	}

	if cfg.SSLRootCert != "" && !d.SupportsSSLRootCert() {
		return DriverInfo{}, NewError(
			KindUnsupportedFeature,
			fmt.Sprintf("%s must be at least %s in order to use the ssl_rootcert parameter", d.Module, d.MinSSLRootCertVersion),
			fmt.Sprintf("installed version: %s", d.Version),
		)
	}

	return d, nil
}

func joinModes(modes []SSLMode) string {
	s := make([]string, len(modes))
	for i, m := range modes {
		s[i] = string(m)
	}
	return strings.Join(s, ", ")
}
