package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpen(ctx context.Context, dsn string) (Session, error) {
	return nil, nil
}

func TestDetectCapabilities(t *testing.T) {
	caps := DetectCapabilities()

	pgxInfo, ok := caps.Driver(DriverPgx)
	require.True(t, ok, "pgx is linked into every build")
	assert.NotNil(t, pgxInfo.Open)
	assert.Equal(t, pgxModule, pgxInfo.Module)

	pqInfo, ok := caps.Driver(DriverPQ)
	require.True(t, ok, "lib/pq registers itself with database/sql")
	assert.False(t, pqInfo.SupportsSSLMode(SSLModePrefer))
	assert.True(t, pqInfo.SupportsSSLMode(SSLModeRequire))

	assert.Equal(t, []string{DriverPgx, DriverPQ}, caps.Names())
}

func TestCapabilities_Versions(t *testing.T) {
	caps := NewCapabilities(
		DriverInfo{Name: DriverPgx, Version: "v5.8.0"},
		DriverInfo{Name: DriverPQ},
	)

	assert.Equal(t, map[string]string{DriverPgx: "v5.8.0", DriverPQ: ""}, caps.Versions())
}

func TestDriverInfo_SupportsSSLRootCert(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		minimum  string
		expected bool
	}{
		{"Newer", "v5.8.0", "v4.0.0", true},
		{"Equal", "v2.4.3", "2.4.3", true},
		{"Older", "2.4.2", "2.4.3", false},
		{"Older minor", "v1.9.0", "v1.10.0", false},
		{"Unknown version", "", "v1.0.0", true},
		{"Development build", "(devel)", "v1.0.0", true},
		{"No minimum", "v0.1.0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DriverInfo{Version: tt.version, MinSSLRootCertVersion: tt.minimum}
			assert.Equal(t, tt.expected, d.SupportsSSLRootCert())
		})
	}
}

func TestCapabilities_Ensure(t *testing.T) {
	caps := NewCapabilities(
		DriverInfo{
			Name:                  "modern",
			Module:                "example.com/modern",
			Version:               "v3.0.0",
			SSLModes:              SSLModes,
			MinSSLRootCertVersion: "v2.4.3",
			Open:                  fakeOpen,
		},
		DriverInfo{
			Name:                  "legacy",
			Module:                "example.com/legacy",
			Version:               "v2.4.2",
			SSLModes:              []SSLMode{SSLModeDisable, SSLModeRequire},
			MinSSLRootCertVersion: "v2.4.3",
			Open:                  fakeOpen,
		},
	)

	tests := []struct {
		name     string
		config   ConnectionConfig
		wantKind Kind
	}{
		{"Available driver", ConnectionConfig{Driver: "modern", SSLMode: SSLModePrefer}, ""},
		{"Missing driver", ConnectionConfig{Driver: "psycopg2"}, KindDriverUnavailable},
		{"Unsupported sslmode", ConnectionConfig{Driver: "legacy", SSLMode: SSLModePrefer}, KindUnsupportedFeature},
		{"Old driver without rootcert", ConnectionConfig{Driver: "legacy", SSLMode: SSLModeRequire}, ""},
		{"Old driver with rootcert", ConnectionConfig{Driver: "legacy", SSLMode: SSLModeRequire, SSLRootCert: "/root.crt"}, KindUnsupportedFeature},
		{"New driver with rootcert", ConnectionConfig{Driver: "modern", SSLRootCert: "/root.crt"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := caps.Ensure(tt.config)
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.config.Driver, d.Name)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestCapabilities_EnsurePQDefaultSSLMode(t *testing.T) {
	caps := DetectCapabilities()

	_, err := caps.Ensure(ConnectionConfig{Driver: DriverPQ}.WithDefaults())
	require.Error(t, err)

	pgErr := AsError(err)
	assert.Equal(t, KindUnsupportedFeature, pgErr.Kind)
	assert.Contains(t, pgErr.Message, "sslmode=prefer")
	assert.Equal(t, "set ssl_mode (--ssl-mode) to one of: disable, require, verify-ca, verify-full", pgErr.Detail)

	_, err = caps.Ensure(ConnectionConfig{Driver: DriverPQ, SSLMode: SSLModeRequire}.WithDefaults())
	assert.NoError(t, err)
}

func TestCapabilities_EnsureDefaultDriver(t *testing.T) {
	caps := NewCapabilities(DriverInfo{Name: DriverPgx, SSLModes: SSLModes, Open: fakeOpen})

	d, err := caps.Ensure(ConnectionConfig{})
	require.NoError(t, err)
	assert.Equal(t, DriverPgx, d.Name)
}

func TestCapabilities_EnsureDriverWithoutOpen(t *testing.T) {
	caps := NewCapabilities(DriverInfo{Name: DriverPgx, SSLModes: SSLModes})

	_, err := caps.Ensure(ConnectionConfig{Driver: DriverPgx})
	assert.Equal(t, KindDriverUnavailable, KindOf(err))
}
