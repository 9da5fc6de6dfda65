package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 32, config.Queue.MaxQueueLength)
	assert.Equal(t, 60*time.Second, config.Queue.ResponseTimeoutDuration())
	assert.Equal(t, 10*time.Second, config.Queue.CommandDequeueTimeoutDuration())
	assert.Equal(t, time.Minute, config.Monitor.IdleAfterDuration())
	assert.NoError(t, config.Validate())
}

func TestLoadFromFiles_LaterFileOverrides(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[server]
port = 9000

[queue]
response_timeout = "30s"
max_queue_length = 8
`)
	override := writeConfigFile(t, "override.toml", `
[queue]
max_queue_length = 4
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 30*time.Second, config.Queue.ResponseTimeoutDuration())
	assert.Equal(t, 4, config.Queue.MaxQueueLength)
	// untouched values keep defaults
	assert.Equal(t, "10s", config.Queue.CommandDequeueTimeout)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "inferd.toml", `
[server]
port = 9000
`)
	t.Setenv("INFERD_SERVER_PORT", "9100")
	t.Setenv("INFERD_QUEUE_MAX_LENGTH", "2")
	t.Setenv("INFERD_LOG_OUTPUT", "stdout, file ,")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, 2, config.Queue.MaxQueueLength)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero queue length", "[queue]\nmax_queue_length = 0\n"},
		{"bad duration", "[queue]\nresponse_timeout = \"soon\"\n"},
		{"negative duration", "[monitor]\nidle_after = \"-1m\"\n"},
		{"port out of range", "[server]\nport = 70000\n"},
		{"unknown log level", "[logging]\nlevel = \"loud\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, "bad.toml", tt.content)
			_, err := LoadFromFiles(path)
			assert.Error(t, err)
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 32168, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)

	ApplyFlagOverrides(config, 8181, "0.0.0.0")
	assert.Equal(t, 8181, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
