// Package config loads the audit configuration from defaults, an optional
// YAML file and TENACITY_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// MinThresholdDays and MaxThresholdDays bound the inactivity threshold.
	MinThresholdDays = 1
	MaxThresholdDays = 3650

	// DefaultCatalogURL points at Microsoft's published product-name CSV.
	DefaultCatalogURL = "https://download.microsoft.com/download/e/3/e/e3e9faf2-f28b-490a-9ada-c6089a1fc5b0/Product%20names%20and%20service%20plan%20identifiers%20for%20licensing.csv"
)

type Config struct {
	Logging LoggingConfig `koanf:"logging"`

	Graph    GraphConfig    `koanf:"graph"`
	Audit    AuditConfig    `koanf:"audit"`
	Output   OutputConfig   `koanf:"output"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// GraphConfig carries the directory API connection settings. The client
// secret is usually supplied via TENACITY_GRAPH_CLIENT_SECRET rather than
// the config file.
type GraphConfig struct {
	TenantID     string        `koanf:"tenant_id"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	BaseURL      string        `koanf:"base_url"`
	LoginURL     string        `koanf:"login_url"`
	Timeout      time.Duration `koanf:"timeout"`
}

type AuditConfig struct {
	ThresholdDays int    `koanf:"threshold_days"`
	SkipSignIn    bool   `koanf:"skip_sign_in"`
	OverridesPath string `koanf:"overrides_path"`
	Language      string `koanf:"language"`
	CatalogURL    string `koanf:"catalog_url"`
	CatalogCache  string `koanf:"catalog_cache"`
}

type OutputConfig struct {
	HTMLPath   string `koanf:"html_path"`
	JSONPath   string `koanf:"json_path"`
	CSVPath    string `koanf:"csv_path"`
	ArchiveDir string `koanf:"archive_dir"`
}

type DatabaseConfig struct {
	URL    string `koanf:"url"`
	Schema string `koanf:"schema"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Logging: LoggingConfig{Level: "info"},
		Graph: GraphConfig{
			BaseURL:  "https://graph.microsoft.com/v1.0",
			LoginURL: "https://login.microsoftonline.com",
			Timeout:  30 * time.Second,
		},
		Audit: AuditConfig{
			ThresholdDays: 90,
			Language:      "en",
			CatalogURL:    DefaultCatalogURL,
		},
		Output: OutputConfig{
			HTMLPath: "license-report.html",
		},
		Database: DatabaseConfig{
			Schema: "tenacity_audit",
		},
		Server: ServerConfig{
			Port:            7810,
			ShutdownTimeout: 5 * time.Second,
		},
	}
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// TENACITY_GRAPH_CLIENT_SECRET -> graph.client_secret
	err := k.Load(env.Provider("TENACITY_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "TENACITY_")), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// DATABASE_URL keeps working the way the older audit tooling expected.
	if k.String("database.url") == "" {
		if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
			_ = k.Set("database.url", v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the invariants a run cannot start without.
func (c *Config) Validate() error {
	if c.Audit.ThresholdDays < MinThresholdDays || c.Audit.ThresholdDays > MaxThresholdDays {
		return fmt.Errorf("audit.threshold_days must be between %d and %d, got %d",
			MinThresholdDays, MaxThresholdDays, c.Audit.ThresholdDays)
	}
	if c.Graph.TenantID == "" {
		return fmt.Errorf("graph.tenant_id is required")
	}
	if c.Graph.ClientID == "" {
		return fmt.Errorf("graph.client_id is required")
	}
	if c.Graph.ClientSecret == "" {
		return fmt.Errorf("graph.client_secret is required")
	}
	return nil
}
