package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecluster/pkg/config"
)

func TestCreateLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "invalid", ""} {
		t.Run(level, func(t *testing.T) {
			logger := createLogger(level)
			assert.NotNil(t, logger)
			logger.Info("test message")
		})
	}
}

func TestSetupCommand(t *testing.T) {
	originalCfg := cfg
	cfg = config.NewDefaultConfig()
	defer func() { cfg = originalCfg }()

	logger, ctx, cancel := setupCommand(context.Background())
	assert.NotNil(t, logger)
	assert.NotNil(t, ctx)

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled initially")
	default:
	}

	cancel()
	<-ctx.Done()
	assert.Error(t, ctx.Err())
}

func TestSetupCommandCancellation(t *testing.T) {
	originalCfg := cfg
	cfg = config.NewDefaultConfig()
	defer func() { cfg = originalCfg }()

	_, ctx, cancel := setupCommand(context.Background())
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("context should be cancelled")
	}
}

func TestVersionCommand(t *testing.T) {
	version = "1.0.0"
	buildTime = "2026-01-01"
	gitCommit = "abc123"

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	cmd := newVersionCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	output := buf.String()

	require.NoError(t, err)
	assert.Contains(t, output, "cachecluster")
	assert.Contains(t, output, "1.0.0")
	assert.Contains(t, output, "abc123")
}

func TestHealthCheckCommand(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	cmd := newHealthCheckCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "OK")
}

func TestServeCommandFlags(t *testing.T) {
	originalCfg := cfg
	cfg = config.NewDefaultConfig()
	defer func() { cfg = originalCfg }()

	cmd := newServeCmd()
	for _, flagName := range []string{"config", "port", "tls"} {
		assert.NotNil(t, cmd.Flag(flagName), "flag %s should exist", flagName)
	}

	err := cmd.ParseFlags([]string{"--config", "test-config.yaml"})
	assert.NoError(t, err)
}

func TestCommandHelp(t *testing.T) {
	originalCfg := cfg
	cfg = config.NewDefaultConfig()
	defer func() { cfg = originalCfg }()

	commands := []struct {
		name    string
		factory func() *cobra.Command
	}{
		{"version", newVersionCmd},
		{"health-check", newHealthCheckCmd},
		{"serve", newServeCmd},
	}

	for _, tc := range commands {
		t.Run(tc.name, func(t *testing.T) {
			cmd := tc.factory()
			assert.NotEmpty(t, cmd.Use)
			assert.NotEmpty(t, cmd.Short)
		})
	}
}

func TestRootCommandStructure(t *testing.T) {
	originalCfg := cfg
	cfg = config.NewDefaultConfig()
	defer func() { cfg = originalCfg }()

	testRootCmd := &cobra.Command{Use: "cachecluster"}
	testRootCmd.AddCommand(newVersionCmd())
	testRootCmd.AddCommand(newHealthCheckCmd())
	testRootCmd.AddCommand(newServeCmd())

	expected := []string{"version", "health-check", "serve"}
	actual := make(map[string]bool)
	for _, c := range testRootCmd.Commands() {
		actual[c.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, actual[name], "command %s not found", name)
	}
}

func TestConfigurationFlagBinding(t *testing.T) {
	originalCfg := cfg
	cfg = config.NewDefaultConfig()
	defer func() { cfg = originalCfg }()

	testRootCmd := &cobra.Command{Use: "cachecluster"}
	cfg.AddFlagsToCommand(testRootCmd)

	for _, flagName := range []string{"log-level", "ring-virtual-nodes", "replication-factor"} {
		assert.NotNil(t, testRootCmd.Flag(flagName), "flag %s should exist", flagName)
	}
}

func TestConfigFileLoading(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := "loglevel: debug\n"
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	loadedCfg, err := config.LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", loadedCfg.LogLevel)
}
