package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultsWithoutFile(t *testing.T) {
	manager, err := NewManager("", false)
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.SimulationMode)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8090", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Streaming.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Streaming.FetchTimeout)
	assert.Equal(t, 10, cfg.Streaming.BookDepth)
	assert.False(t, cfg.Streaming.SuppressDuplicates)
	assert.True(t, cfg.Cache.Enabled)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
logLevel: debug
simulationMode: true
simulationSeed: 42
server:
  port: 9100
streaming:
  pollInterval: 500ms
  bookDepth: 25
  suppressDuplicates: true
exchanges:
  - name: binance
    apiKey: k
    apiSecret: s
    testnet: true
`)

	manager, err := NewManager(path, false)
	require.NoError(t, err)

	cfg := manager.GetConfig()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.SimulationMode)
	assert.Equal(t, int64(42), cfg.SimulationSeed)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Streaming.PollInterval)
	assert.Equal(t, 25, cfg.Streaming.BookDepth)
	assert.True(t, cfg.Streaming.SuppressDuplicates)

	require.Len(t, cfg.Exchanges, 1)
	assert.Equal(t, "binance", cfg.Exchanges[0].Name)
	assert.True(t, cfg.Exchanges[0].Testnet)
}

func TestInvalidLogLevelRejected(t *testing.T) {
	path := writeConfigFile(t, `
logLevel: verbose
`)

	_, err := NewManager(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestInvalidPortRejected(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 70000
`)

	_, err := NewManager(path, false)
	require.Error(t, err)
}

func TestSecretsRequirePaths(t *testing.T) {
	path := writeConfigFile(t, `
exchanges:
  - name: kraken
    useSecrets: true
`)

	_, err := NewManager(path, false)
	require.Error(t, err, "useSecrets without secret paths must fail validation")
}

func TestMissingFileErrors(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.Error(t, err)
}
