package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.AO.TagMatch == "" {
		cfg.AO.TagMatch = "exact"
	}
	if cfg.Prices.VsCurrency == "" {
		cfg.Prices.VsCurrency = "usd"
	}
	if cfg.Prices.Freshness == 0 {
		cfg.Prices.Freshness = 5 * time.Minute
	}
	if cfg.Prices.TTL == 0 {
		cfg.Prices.TTL = 24 * time.Hour
	}

	return &cfg, nil
}
