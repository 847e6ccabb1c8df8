package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cachecluster/pkg/cachehash"
	"cachecluster/pkg/cachemanager"
	"cachecluster/pkg/config"
	"cachecluster/pkg/engine"
	"cachecluster/pkg/eviction"
	"cachecluster/pkg/health"
	"cachecluster/pkg/metrics"
	"cachecluster/pkg/ring"
	"cachecluster/pkg/server"
)

// newServeCmd creates the serve command: it starts this process as a node
// in the cluster, bringing up the local engine, the ring, the distributed
// manager, the defensive health monitor, and the admin HTTP API.
func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a cache cluster node",
		Long:  `Starts this process as a node in the cache cluster, serving the admin HTTP API and participating in the hash ring`,
		Run: func(cmd *cobra.Command, args []string) {
			logger, ctx, cancel := setupCommand(cmd.Context())
			defer cancel()

			if configFile != "" {
				logger.WithField("file", configFile).Info("loading configuration from file")

				loadedCfg, err := config.LoadFromFile(configFile)
				if err != nil {
					logger.Error("failed to load configuration", err)
					fmt.Printf("Error loading configuration: %s\n", err)
					os.Exit(1)
				}
				cfg = loadedCfg
			}

			if cfg.Node.ID == "" {
				cfg.Node.ID = fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port)
			}

			logger.WithFields(map[string]interface{}{
				"nodeId": cfg.Node.ID,
				"port":   cfg.Server.Port,
			}).Info("starting cache cluster node")

			hashRing := ring.New(
				ring.WithVirtualNodes(cfg.Ring.VirtualNodes),
				ring.WithHashFunc(cachehash.Resolve(cachehash.Name(cfg.Ring.HashFunction))),
			)

			localEngine := engine.New(engine.Options{
				MaxSize:       cfg.Engine.MaxSize,
				Policy:        eviction.Kind(cfg.Engine.EvictionPolicy),
				SweepInterval: cfg.Engine.SweepInterval,
				Logger:        logger,
			})

			manager := cachemanager.New(hashRing, cachemanager.Config{
				ReplicationFactor: cfg.Ring.ReplicationFactor,
			}, logger)
			manager.AddNode(cfg.Node.ID, localEngine)

			discovery := health.NewStaticDiscovery()
			discovery.Register(health.DiscoveredNode{NodeID: cfg.Node.ID, Host: cfg.Node.Host, Port: cfg.Node.Port})

			monitor := health.NewMonitor(discovery, nil, health.Config{
				CheckInterval:  cfg.Health.CheckInterval,
				DialTimeout:    cfg.Health.DialTimeout,
				GlobalDeadline: cfg.Health.GlobalDeadline,
			}, logger)

			metricsRegistry := metrics.NewRegistry()

			srv, err := server.NewServer(ctx, cfg, logger, manager, monitor, discovery, metricsRegistry)
			if err != nil {
				logger.Error("failed to create server", err)
				fmt.Printf("Error creating server: %s\n", err)
				os.Exit(1)
			}

			if err := srv.Start(); err != nil {
				logger.Error("server failed", err)
				fmt.Printf("Server error: %s\n", err)
				os.Exit(1)
			}
		},
	}

	cfg.AddServerFlags(cmd)
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path")

	return cmd
}
