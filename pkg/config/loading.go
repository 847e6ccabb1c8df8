package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cachecluster/pkg/cacheerrors"
)

// LoadFromFile builds a Config starting from NewDefaultConfig, then
// overridden by configPath's YAML contents (if non-empty), then by
// CACHECLUSTER_* environment variables, in that order. CLI flags are
// bound separately via AddFlagsToCommand/AddServerFlags and override
// whatever this function returns.
func LoadFromFile(configPath string) (*Config, error) {
	config := NewDefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, cacheerrors.NotFoundf("configuration file not found: %s", configPath)
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, cacheerrors.Wrap(err, "failed to read configuration file")
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, cacheerrors.Wrap(err, "failed to parse configuration file")
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadFromEnv(config *Config) error {
	strVars := map[string]*string{
		"CACHECLUSTER_LOG_LEVEL":     &config.LogLevel,
		"CACHECLUSTER_NODE_ID":       &config.Node.ID,
		"CACHECLUSTER_NODE_HOST":     &config.Node.Host,
		"CACHECLUSTER_HASH_FUNCTION": &config.Ring.HashFunction,
		"CACHECLUSTER_EVICTION_POLICY": &config.Engine.EvictionPolicy,
	}
	for env, field := range strVars {
		if value, exists := os.LookupEnv(env); exists && value != "" {
			*field = value
		}
	}

	intVars := map[string]*int{
		"CACHECLUSTER_NODE_PORT":          &config.Node.Port,
		"CACHECLUSTER_RING_VIRTUAL_NODES": &config.Ring.VirtualNodes,
		"CACHECLUSTER_REPLICATION_FACTOR": &config.Ring.ReplicationFactor,
		"CACHECLUSTER_ENGINE_MAX_SIZE":    &config.Engine.MaxSize,
		"CACHECLUSTER_SERVER_PORT":        &config.Server.Port,
	}
	for env, field := range intVars {
		if value, exists := os.LookupEnv(env); exists && value != "" {
			if n, err := strconv.Atoi(value); err == nil {
				*field = n
			}
		}
	}

	durationVars := map[string]*time.Duration{
		"CACHECLUSTER_ENGINE_SWEEP_INTERVAL": &config.Engine.SweepInterval,
		"CACHECLUSTER_LOCK_SWEEP_INTERVAL":   &config.Lock.SweepInterval,
		"CACHECLUSTER_LOCK_DEFAULT_TTL":      &config.Lock.DefaultTTL,
		"CACHECLUSTER_HEALTH_CHECK_INTERVAL": &config.Health.CheckInterval,
	}
	for env, field := range durationVars {
		if value, exists := os.LookupEnv(env); exists && value != "" {
			if d, err := time.ParseDuration(value); err == nil {
				*field = d
			}
		}
	}

	if value, exists := os.LookupEnv("CACHECLUSTER_TLS_ENABLED"); exists {
		config.Server.TLSEnabled = strings.ToLower(value) == "true" || value == "1"
	}

	if value, exists := os.LookupEnv("CACHECLUSTER_API_KEY_AUTH"); exists {
		config.Server.APIKeyAuth = strings.ToLower(value) == "true" || value == "1"
	}
	if value, exists := os.LookupEnv("CACHECLUSTER_API_KEY"); exists && value != "" {
		config.Server.APIKey = value
	}

	return nil
}

// SaveToFile writes the configuration to filePath as YAML.
func (c *Config) SaveToFile(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return cacheerrors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	defer encoder.Close()
	if err := encoder.Encode(c); err != nil {
		return cacheerrors.Wrap(err, "failed to encode configuration")
	}
	return nil
}
