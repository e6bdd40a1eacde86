// Package config handles configuration loading for the mtsites tools.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// MTSITES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "MTSITES_"

// Config represents the root configuration file structure.
type Config struct {
	Catalog Catalog `yaml:"catalog" envPrefix:"CATALOG_"`
	Index   Index   `yaml:"index"   envPrefix:"INDEX_"`
	PostGIS PostGIS `yaml:"postgis" envPrefix:"POSTGIS_"`
	Log     Log     `yaml:"log"     envPrefix:"LOG_"`
}

// Catalog controls how site files are discovered and loaded
type Catalog struct {
	Dir     string `yaml:"dir"     env:"DIR"`
	Workers int    `yaml:"workers" env:"WORKERS"`
}

// Index controls the in-memory spatial index
type Index struct {
	File       string `yaml:"file"       env:"FILE"`
	Partitions int    `yaml:"partitions" env:"PARTITIONS"`
}

// PostGIS holds the connection settings for the optional database store
type PostGIS struct {
	Host           string `yaml:"host"            env:"HOST"`
	Port           int    `yaml:"port"            env:"PORT"`
	User           string `yaml:"user"            env:"USER"`
	Password       string `yaml:"password"        env:"PASSWORD"`
	Database       string `yaml:"database"        env:"DATABASE"`
	SSLMode        string `yaml:"sslmode"         env:"SSLMODE"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// DSN returns the lib/pq connection string
func (p PostGIS) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Log selects the zerolog level and output format (console or json)
type Log struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Catalog: Catalog{Dir: ".", Workers: runtime.NumCPU()},
		Index:   Index{File: "sites.idx", Partitions: runtime.NumCPU()},
		PostGIS: PostGIS{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			Database:       "mtsites",
			SSLMode:        "disable",
			MaxConnections: 10,
		},
		Log: Log{Level: "info", Format: "auto"},
	}
}

// Load reads the YAML configuration file from path and applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if cfg.Catalog.Workers <= 0 {
		cfg.Catalog.Workers = runtime.NumCPU()
	}
	if cfg.Index.Partitions <= 0 {
		cfg.Index.Partitions = runtime.NumCPU()
	}

	return cfg, nil
}
