package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  `Displays the version and build information for this installation of cachecluster`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cachecluster %s\n", version)
			fmt.Printf("Git Commit: %s\n", gitCommit)
			fmt.Printf("Build Time: %s\n", buildTime)
			fmt.Printf("Go Version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// newHealthCheckCmd creates a command suitable for container orchestrator
// health probes: it exits 0 as long as the binary itself can run, without
// reaching any node over the network.
func newHealthCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health-check",
		Short: "Perform a local liveness check",
		Long:  `Performs a liveness check suitable for container health checks`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("OK")
		},
	}
}
