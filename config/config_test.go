package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvrpc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlay(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = " :9090 "
timeout = "2s"
weight = 3

[client]
codec = "binary"
retries = 2
retry_delay = "50ms"

[rate_limit]
rate = 10.5
burst = 4

[etcd]
endpoints = ["127.0.0.1:2379", " ", "10.0.0.2:2379"]

[log]
level = "debug"
json = true

[telemetry]
enabled = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 2*time.Second, cfg.Server.Timeout)
	require.Equal(t, 3, cfg.Server.Weight)
	require.Equal(t, int64(4<<20), cfg.Server.MaxBodyBytes, "untouched keys keep defaults")
	require.Equal(t, "binary", cfg.Client.Codec)
	require.Equal(t, 2, cfg.Client.Retries)
	require.Equal(t, 50*time.Millisecond, cfg.Client.RetryDelay)
	require.Equal(t, "round_robin", cfg.Client.Balancer)
	require.Equal(t, 10.5, cfg.RateLimit.Rate)
	require.Equal(t, 4, cfg.RateLimit.Burst)
	require.Equal(t, []string{"127.0.0.1:2379", "10.0.0.2:2379"}, cfg.Etcd.Endpoints)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.JSON)
	require.True(t, cfg.Telemetry.Enabled)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"bad duration": "[server]\ntimeout = \"soon\"\n",
		"unknown key":  "[server]\nport = 80\n",
		"bad syntax":   "[server\n",
		"invalid ttl":  "[server]\nttl = 0\n",
		"invalid rate": "[rate_limit]\nrate = 5.0\nburst = 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
