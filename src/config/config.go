package config

import (
	"fmt"
	"os"

	"kline-cache/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file. A .env file in
// the working directory, if present, is loaded first so that yaml values
// like ${KLINE_WS_URL} style deployments can rely on the environment.
func NewConfig(configPath string) (*Config, error) {
	// 1. Load optional .env (ignore absence)
	_ = godotenv.Load()

	// 2. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 3. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}

	// Validate Kline configuration
	if c.Kline.HTTPURL == "" {
		return fmt.Errorf("kline http url cannot be empty")
	}
	if c.Kline.WSURL == "" {
		return fmt.Errorf("kline ws url cannot be empty")
	}
	if c.Kline.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("reconnect delay must be greater than 0")
	}
	if c.Kline.BackfillHours <= 0 {
		return fmt.Errorf("backfill hours must be greater than 0")
	}
	if len(c.Kline.Intervals) == 0 {
		return fmt.Errorf("at least one interval must be configured")
	}
	for i, interval := range c.Kline.Intervals {
		if !interval.Valid() {
			return fmt.Errorf("interval %d is not a known granularity: %s", i, interval)
		}
	}
	for i, pair := range c.Kline.Pairs {
		if pair.Token0 == "" || pair.Token1 == "" {
			return fmt.Errorf("pair %d must have token0 and token1", i)
		}
	}

	// Validate Cache configuration
	if c.Cache.MaxPoints <= 0 {
		return fmt.Errorf("cache max points must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
