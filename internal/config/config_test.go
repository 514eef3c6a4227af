package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 25, cfg.Concurrency)
	require.Equal(t, 6, cfg.TimeoutSeconds)
	require.Equal(t, 5, cfg.TargetTimeoutSeconds)
	require.Equal(t, "AUTO", cfg.ForceProtocol)
	require.EqualValues(t, 45, cfg.GeoRatePerMinute)
	require.Equal(t, "http://httpbin.org/get", cfg.EchoURL)
}

func TestLoadFile_OverlaysDefaults(t *testing.T) {
	path := writeProfile(t, `
concurrency: 50
force_protocol: socks5
input: proxies.txt
targets:
  - http://intranet/
  - http://10.0.0.5:8080/admin
geoip_db: /var/lib/GeoLite2-Country.mmdb
insecure_tls: true
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Concurrency)
	require.Equal(t, 6, cfg.TimeoutSeconds)
	require.Equal(t, "socks5", cfg.ForceProtocol)
	require.Equal(t, "proxies.txt", cfg.InputFile)
	require.Equal(t, []string{"http://intranet/", "http://10.0.0.5:8080/admin"}, cfg.Targets)
	require.Equal(t, "/var/lib/GeoLite2-Country.mmdb", cfg.GeoIPDB)
	require.True(t, cfg.InsecureTLS)
	require.NoError(t, Validate(cfg))
}

func TestLoadFile_Empty(t *testing.T) {
	cfg, err := LoadFile(writeProfile(t, ""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	_, err = LoadFile(writeProfile(t, "concurency: 10\n"))
	require.Error(t, err)

	_, err = LoadFile(writeProfile(t, "concurrency: [1, 2]\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.InputFile = "p.txt"
	require.NoError(t, Validate(cfg))

	bad := cfg
	bad.Concurrency = 0
	require.ErrorIs(t, Validate(bad), ErrInvalidConfig)

	bad = cfg
	bad.ForceProtocol = "ftp"
	require.ErrorIs(t, Validate(bad), ErrInvalidConfig)

	bad = cfg
	bad.OutputFormat = "xml"
	require.ErrorIs(t, Validate(bad), ErrInvalidConfig)

	bad = cfg
	bad.InputFile = ""
	require.ErrorIs(t, Validate(bad), ErrInvalidConfig)
	bad.Listen = "127.0.0.1:8089"
	require.NoError(t, Validate(bad))
}
