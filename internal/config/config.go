// Package config loads the optional YAML config file and provider
// credentials. Everything has a usable default so the tool runs with just
// SERPER_API_KEY set.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const apiKeyEnv = "SERPER_API_KEY"

// RegionConfig overrides how one region's catalog is sourced.
type RegionConfig struct {
	// CityFile points at a local "name,latitude,longitude,population" table
	// used instead of the embedded one.
	CityFile string `yaml:"city_file"`
}

type Config struct {
	// OutputDir is where run databases, logs and CSV exports land.
	OutputDir string `yaml:"output_dir"`
	// RateLimit is the provider request rate in requests per second.
	RateLimit float64 `yaml:"rate_limit"`
	// Regions maps region codes to catalog source overrides.
	Regions map[string]RegionConfig `yaml:"regions"`
	// BatchTerms maps region codes to the search terms batch mode uses for
	// that region's sub-runs.
	BatchTerms map[string][]string `yaml:"batch_terms"`
}

func Default() *Config {
	return &Config{
		OutputDir: "./exports",
		RateLimit: 2,
	}
}

// Load reads the config file at path. An empty path returns defaults; a
// named file that is missing or malformed is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = Default().OutputDir
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = Default().RateLimit
	}
	return cfg, nil
}

// APIKey loads SERPER_API_KEY, consulting a .env file first. A missing key
// is a configuration error: no scraping command can run without it.
func APIKey() (string, error) {
	_ = godotenv.Load()
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s not set (env or .env file)", apiKeyEnv)
	}
	return key, nil
}
