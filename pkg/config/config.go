package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cachecluster/pkg/eviction"
)

// Config is the cache cluster's top-level configuration: node identity,
// ring placement, local engine behavior, lock registry policy, health
// monitor cadence, and the admin HTTP server.
type Config struct {
	LogLevel string

	Node   NodeConfig
	Ring   RingConfig
	Engine EngineConfig
	Lock   LockConfig
	Health HealthConfig
	Server ServerConfig
}

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	ID   string
	Host string
	Port int
}

// RingConfig tunes the consistent-hash ring.
type RingConfig struct {
	VirtualNodes      int
	ReplicationFactor int
	HashFunction      string // "fnv1a", "md5", or "xxhash"
}

// EngineConfig tunes the local cache engine.
type EngineConfig struct {
	MaxSize       int
	EvictionPolicy string // "lru", "lfu", or "random"
	SweepInterval time.Duration
}

// LockConfig tunes the distributed lock registry.
type LockConfig struct {
	SweepInterval time.Duration
	DefaultTTL    time.Duration
	MaxRenewals   int
}

// HealthConfig tunes the defensive health monitor.
type HealthConfig struct {
	CheckInterval  time.Duration
	DialTimeout    time.Duration
	GlobalDeadline time.Duration
}

// ServerConfig tunes the admin HTTP server.
type ServerConfig struct {
	Port            int
	TLSEnabled      bool
	TLSCertFile     string
	TLSKeyFile      string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APIKeyAuth      bool
	APIKey          string
}

// NewDefaultConfig returns a Config populated with the cluster's default
// values, overridable by LoadFromFile, environment variables, then CLI
// flags, in that order.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Node: NodeConfig{
			ID:   "",
			Host: "0.0.0.0",
			Port: 7000,
		},
		Ring: RingConfig{
			VirtualNodes:      150,
			ReplicationFactor: 1,
			HashFunction:      "fnv1a",
		},
		Engine: EngineConfig{
			MaxSize:       100000,
			EvictionPolicy: string(eviction.LRU),
			SweepInterval: time.Second,
		},
		Lock: LockConfig{
			SweepInterval: 5 * time.Second,
			DefaultTTL:    30 * time.Second,
			MaxRenewals:   0,
		},
		Health: HealthConfig{
			CheckInterval:  60 * time.Second,
			DialTimeout:    2 * time.Second,
			GlobalDeadline: 30 * time.Second,
		},
		Server: ServerConfig{
			Port:            8080,
			TLSEnabled:      false,
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// AddFlagsToCommand binds the cluster-wide flags onto cmd's persistent
// flag set.
func (c *Config) AddFlagsToCommand(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error, fatal)")

	cmd.PersistentFlags().StringVar(&c.Node.ID, "node-id", c.Node.ID, "Unique id for this node (empty = generated)")
	cmd.PersistentFlags().StringVar(&c.Node.Host, "node-host", c.Node.Host, "Host this node advertises to the cluster")
	cmd.PersistentFlags().IntVar(&c.Node.Port, "node-port", c.Node.Port, "Port this node advertises to the cluster")

	cmd.PersistentFlags().IntVar(&c.Ring.VirtualNodes, "ring-virtual-nodes", c.Ring.VirtualNodes, "Virtual nodes per physical node on the hash ring")
	cmd.PersistentFlags().IntVar(&c.Ring.ReplicationFactor, "replication-factor", c.Ring.ReplicationFactor, "Number of replicas per key")
	cmd.PersistentFlags().StringVar(&c.Ring.HashFunction, "hash-function", c.Ring.HashFunction, "Ring hash function (fnv1a, md5, xxhash)")

	cmd.PersistentFlags().IntVar(&c.Engine.MaxSize, "engine-max-size", c.Engine.MaxSize, "Maximum number of keys per local engine (0 disables storage)")
	cmd.PersistentFlags().StringVar(&c.Engine.EvictionPolicy, "eviction-policy", c.Engine.EvictionPolicy, "Eviction policy (lru, lfu, random)")
	cmd.PersistentFlags().DurationVar(&c.Engine.SweepInterval, "engine-sweep-interval", c.Engine.SweepInterval, "TTL sweep interval for the local engine")

	cmd.PersistentFlags().DurationVar(&c.Lock.SweepInterval, "lock-sweep-interval", c.Lock.SweepInterval, "TTL sweep interval for the lock registry")
	cmd.PersistentFlags().DurationVar(&c.Lock.DefaultTTL, "lock-default-ttl", c.Lock.DefaultTTL, "Default TTL for a lock with no caller-specified TTL")

	cmd.PersistentFlags().DurationVar(&c.Health.CheckInterval, "health-check-interval", c.Health.CheckInterval, "Interval between defensive health sweeps")
	cmd.PersistentFlags().DurationVar(&c.Health.DialTimeout, "health-dial-timeout", c.Health.DialTimeout, "Socket connect timeout for a node probe")
	cmd.PersistentFlags().DurationVar(&c.Health.GlobalDeadline, "health-global-deadline", c.Health.GlobalDeadline, "Deadline bounding one full health sweep")
}

// AddServerFlags binds the admin HTTP server's flags onto cmd.
func (c *Config) AddServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&c.Server.Port, "port", c.Server.Port, "Admin server listening port")
	cmd.Flags().BoolVar(&c.Server.TLSEnabled, "tls", c.Server.TLSEnabled, "Enable TLS")
	cmd.Flags().StringVar(&c.Server.TLSCertFile, "tls-cert", c.Server.TLSCertFile, "TLS certificate file")
	cmd.Flags().StringVar(&c.Server.TLSKeyFile, "tls-key", c.Server.TLSKeyFile, "TLS key file")
	cmd.Flags().StringSliceVar(&c.Server.AllowedOrigins, "allowed-origins", c.Server.AllowedOrigins, "Allowed CORS origins")
	cmd.Flags().DurationVar(&c.Server.ReadTimeout, "read-timeout", c.Server.ReadTimeout, "HTTP server read timeout")
	cmd.Flags().DurationVar(&c.Server.WriteTimeout, "write-timeout", c.Server.WriteTimeout, "HTTP server write timeout")
	cmd.Flags().DurationVar(&c.Server.ShutdownTimeout, "shutdown-timeout", c.Server.ShutdownTimeout, "HTTP server shutdown timeout")
	cmd.Flags().BoolVar(&c.Server.APIKeyAuth, "api-key-auth", c.Server.APIKeyAuth, "Require an API key on non-health admin routes")
	cmd.Flags().StringVar(&c.Server.APIKey, "api-key", c.Server.APIKey, "API key required when api-key-auth is enabled")
}

// Validate reports the first configuration error found, if any.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return errConfig("log level must be one of: debug, info, warn, error, fatal")
	}
	if c.Ring.VirtualNodes <= 0 {
		return errConfig("ring.virtualNodes must be positive")
	}
	if c.Ring.ReplicationFactor <= 0 {
		return errConfig("ring.replicationFactor must be positive")
	}
	if c.Engine.MaxSize < 0 {
		return errConfig("engine.maxSize must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errConfig("server.port must be between 1 and 65535")
	}
	if c.Server.TLSEnabled && (c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "") {
		return errConfig("TLS certificate and key files must be provided when TLS is enabled")
	}
	return nil
}

func errConfig(message string) error {
	return &configError{message: message}
}

type configError struct{ message string }

func (e *configError) Error() string { return "invalid configuration: " + e.message }

// GetOptimalWorkerCount picks a default worker/concurrency count based on
// available CPUs: at least 2, one per core on small machines, one core
// free for system tasks on larger ones.
func GetOptimalWorkerCount() int {
	numCPU := runtime.NumCPU()
	switch {
	case numCPU <= 2:
		return 2
	case numCPU <= 4:
		return numCPU
	default:
		return numCPU - 1
	}
}
