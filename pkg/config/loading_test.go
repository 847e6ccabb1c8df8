package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantError bool
	}{
		{
			name: "valid config",
			content: `
loglevel: debug
server:
  port: 9090
`,
			wantError: false,
		},
		{name: "empty file", content: "", wantError: false},
		{name: "invalid yaml", content: "invalid: [yaml\n  missing: bracket\n", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.content), 0644))

			cfg, err := LoadFromFile(configPath)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg)
		})
	}
}

func TestLoadFromFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromFileEmptyPath(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"CACHECLUSTER_LOG_LEVEL":             "debug",
		"CACHECLUSTER_NODE_HOST":             "10.0.0.5",
		"CACHECLUSTER_NODE_PORT":             "7500",
		"CACHECLUSTER_RING_VIRTUAL_NODES":    "200",
		"CACHECLUSTER_ENGINE_SWEEP_INTERVAL": "2s",
		"CACHECLUSTER_TLS_ENABLED":           "true",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg := NewDefaultConfig()
	require.NoError(t, loadFromEnv(cfg))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "10.0.0.5", cfg.Node.Host)
	assert.Equal(t, 7500, cfg.Node.Port)
	assert.Equal(t, 200, cfg.Ring.VirtualNodes)
	assert.Equal(t, 2*time.Second, cfg.Engine.SweepInterval)
	assert.True(t, cfg.Server.TLSEnabled)
}

func TestSaveToFile(t *testing.T) {
	cfg := NewDefaultConfig()
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "config.yaml")

	require.NoError(t, cfg.SaveToFile(filePath))

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
