// Package config manages application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Document store backends.
const (
	DocumentStoreMongo = "mongo"
	DocumentStoreFile  = "file"
)

// SQL drivers.
const (
	SQLDriverPostgres = "pgx"
	SQLDriverSQLite   = "sqlite"
)

// Duration is a time.Duration read from strings such as "10m".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all application configuration.
type Config struct {
	// APIKey authenticates Data API requests. Required for harvesting.
	APIKey string `json:"api_key" yaml:"api_key"`
	// APIEndpoint overrides the Data API base URL.
	APIEndpoint string `json:"api_endpoint" yaml:"api_endpoint"`
	// RequestsPerSecond is the shared request budget for all fetches.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	// MaxPages bounds every paginated listing.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	// Workers bounds concurrent playlist and video expansion.
	Workers int `json:"workers" yaml:"workers"`
	// HarvestTimeout bounds a single harvest.
	HarvestTimeout Duration `json:"harvest_timeout" yaml:"harvest_timeout"`

	// DocumentStore selects the document backend: "mongo" or "file".
	DocumentStore string `json:"document_store" yaml:"document_store"`
	MongoURI      string `json:"mongo_uri" yaml:"mongo_uri"`
	DocumentPath  string `json:"document_path" yaml:"document_path"`

	// SQLDriver selects the relational driver: "pgx" or "sqlite".
	SQLDriver string `json:"sql_driver" yaml:"sql_driver"`
	SQLDSN    string `json:"sql_dsn" yaml:"sql_dsn"`

	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogFormat  string `json:"log_format" yaml:"log_format"`

	// ConnectRetries is the number of retries when connecting to the stores.
	ConnectRetries int `json:"connect_retries" yaml:"connect_retries"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: 5,
		MaxPages:          100,
		Workers:           4,
		HarvestTimeout:    Duration(10 * time.Minute),
		DocumentStore:     DocumentStoreMongo,
		MongoURI:          "mongodb://localhost:27017",
		DocumentPath:      "ytharvest-documents.json",
		SQLDriver:         SQLDriverPostgres,
		SQLDSN:            "postgres://localhost:5432/youtube",
		ListenAddr:        ":8080",
		LogLevel:          "info",
		LogFormat:         "text",
		ConnectRetries:    5,
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	return LoadFrom(defaultPaths())
}

// LoadFrom is Load with an explicit list of candidate config files. The
// first one that exists is used.
func LoadFrom(paths []string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(paths); err != nil {
		// Config file is optional
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultPaths() []string {
	dir := filepath.Join(os.Getenv("HOME"), ".config", "ytharvest")
	return []string{
		"ytharvest.yaml",
		"ytharvest.yml",
		"ytharvest.json",
		filepath.Join(dir, "ytharvest.yaml"),
		filepath.Join(dir, "ytharvest.yml"),
		filepath.Join(dir, "ytharvest.json"),
	}
}

func (c *Config) loadFromFile(paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, c)
		default:
			err = json.Unmarshal(data, c)
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with YTHARVEST_* environment variables.
func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"YTHARVEST_API_KEY":        &c.APIKey,
		"YTHARVEST_API_ENDPOINT":   &c.APIEndpoint,
		"YTHARVEST_DOCUMENT_STORE": &c.DocumentStore,
		"YTHARVEST_MONGO_URI":      &c.MongoURI,
		"YTHARVEST_DOCUMENT_PATH":  &c.DocumentPath,
		"YTHARVEST_SQL_DRIVER":     &c.SQLDriver,
		"YTHARVEST_SQL_DSN":        &c.SQLDSN,
		"YTHARVEST_LISTEN_ADDR":    &c.ListenAddr,
		"YTHARVEST_LOG_LEVEL":      &c.LogLevel,
		"YTHARVEST_LOG_FORMAT":     &c.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"YTHARVEST_MAX_PAGES":       &c.MaxPages,
		"YTHARVEST_WORKERS":         &c.Workers,
		"YTHARVEST_CONNECT_RETRIES": &c.ConnectRetries,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("YTHARVEST_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("YTHARVEST_RPS: %w", err)
		}
		c.RequestsPerSecond = f
	}
	if v := os.Getenv("YTHARVEST_HARVEST_TIMEOUT"); v != "" {
		if err := c.HarvestTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("YTHARVEST_HARVEST_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.HarvestTimeout < 0 {
		return fmt.Errorf("harvest_timeout must be non-negative")
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("connect_retries must be non-negative")
	}
	switch c.DocumentStore {
	case DocumentStoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo_uri is required for the mongo document store")
		}
	case DocumentStoreFile:
		if c.DocumentPath == "" {
			return fmt.Errorf("document_path is required for the file document store")
		}
	default:
		return fmt.Errorf("unknown document_store %q", c.DocumentStore)
	}
	switch c.SQLDriver {
	case SQLDriverPostgres, SQLDriverSQLite:
	default:
		return fmt.Errorf("unknown sql_driver %q", c.SQLDriver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
