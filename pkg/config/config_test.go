package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
clickhouse:
  host: localhost
  database: pricetracker
quotes:
  api_key: test-key
  base_url: https://finnhub.io/api/v1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesOperationalDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, 15*time.Minute, cfg.Scheduler.UpdateInterval)
	require.Equal(t, 3*time.Hour, cfg.Scheduler.SyncInterval)
	require.Equal(t, cfg.Scheduler.SyncInterval, cfg.Scheduler.StalenessThreshold)
	require.Equal(t, 365, cfg.Scheduler.BackfillDays)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadDefaultsStreamTimings(t *testing.T) {
	// An enabled stream with omitted timings must still get usable tickers;
	// a zero ping interval panics time.NewTicker inside the ping loop.
	cfg, err := Load(writeConfig(t, minimalYAML+`
stream:
  enabled: true
  websocket_url: wss://ws.finnhub.io
`))
	require.NoError(t, err)

	require.True(t, cfg.Stream.Enabled)
	require.Equal(t, 5*time.Second, cfg.Stream.ReconnectDelay)
	require.Equal(t, 30*time.Second, cfg.Stream.PingInterval)
}

func TestLoadRejectsEnabledStreamWithoutURL(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
stream:
  enabled: true
`))
	require.ErrorContains(t, err, "stream.websocket_url")
}
