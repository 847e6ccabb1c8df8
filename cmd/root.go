// Package cmd provides the cachecluster command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cachecluster/pkg/cachelog"
	"cachecluster/pkg/config"
)

var (
	// cfg holds the configuration shared by every subcommand, overridden in
	// place by a loaded config file and by each command's own flags.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "cachecluster",
		Short: "cachecluster runs a node in a distributed in-memory cache cluster",
		Long:  `A distributed in-memory key-value cache: consistent-hash placement, replicated reads and writes, distributed locking, and defensive health monitoring.`,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cfg = config.NewDefaultConfig()
	cfg.AddFlagsToCommand(rootCmd)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newHealthCheckCmd())
	rootCmd.AddCommand(newServeCmd())
}

// setupCommand creates a logger and a cancellable context that is
// cancelled on SIGINT/SIGTERM.
func setupCommand(ctx context.Context) (cachelog.Logger, context.Context, context.CancelFunc) {
	logger := createLogger(cfg.LogLevel)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info("received termination signal, shutting down")
			cancel()
		case <-ctx.Done():
			return
		}
	}()

	return logger, ctx, cancel
}

// createLogger creates a logger at the given level, defaulting to info on
// an unrecognized level.
func createLogger(level string) cachelog.Logger {
	return cachelog.NewBasicLogger(cachelog.ParseLevel(level))
}
