// Package config loads the vitrine configuration: a YAML file merged over
// DefaultConfig, then environment overrides (a .env file is honoured).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full vitrine configuration.
type Config struct {
	Listen   string      `yaml:"listen"`
	DBPath   string      `yaml:"db_path"`
	LogLevel string      `yaml:"log_level"`
	Sheets   SheetConfig `yaml:"sheets"`
	Media    MediaConfig `yaml:"media"`
	Watch    WatchConfig `yaml:"watch"`
	S3       S3Config    `yaml:"s3"`
}

// SheetConfig locates the catalog spreadsheet.
type SheetConfig struct {
	URLTemplate   string        `yaml:"url_template"` // must contain {sheet}
	VersionSheet  string        `yaml:"version_sheet"`
	ProductsSheet string        `yaml:"products_sheet"`
	FeaturesSheet string        `yaml:"features_sheet"` // optional
	VersionRow    int           `yaml:"version_row"`
	VersionCol    int           `yaml:"version_col"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MediaConfig configures the media mirror.
type MediaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Concurrency int    `yaml:"concurrency"`
	MaxMB       int    `yaml:"max_mb"`
	// Retries is the number of extra attempts on transient download errors.
	Retries int `yaml:"retries"`
	// AllowPrivate disables the private-address check on media and sheet
	// URLs, for LAN deployments.
	AllowPrivate bool `yaml:"allow_private"`
}

// WatchConfig configures the version poller.
type WatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Debounce  time.Duration `yaml:"debounce"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// S3Config enables the s3:// media source when Endpoint is set.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

// DefaultConfig returns sane defaults. The sheet URL has no default.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		DBPath:   "vitrine.db",
		LogLevel: "info",
		Sheets: SheetConfig{
			VersionSheet:  "Version",
			ProductsSheet: "Products",
			Timeout:       30 * time.Second,
		},
		Media: MediaConfig{
			Concurrency: 5,
			MaxMB:       25,
			Retries:     2,
		},
		Watch: WatchConfig{
			Enabled:   true,
			Interval:  time.Minute,
			Heartbeat: 30 * time.Minute,
		},
		S3: S3Config{UseSSL: true},
	}
}

// Load reads the optional YAML file at path, then the env files (".env"
// when none are given; missing files are ignored), then applies environment
// overrides and validates.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env %s: %w", f, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from the environment, read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("VITRINE_LISTEN", &c.Listen)
	str("VITRINE_DB_PATH", &c.DBPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("VITRINE_SHEET_URL", &c.Sheets.URLTemplate)
	str("VITRINE_VERSION_SHEET", &c.Sheets.VersionSheet)
	str("VITRINE_PRODUCTS_SHEET", &c.Sheets.ProductsSheet)
	str("VITRINE_FEATURES_SHEET", &c.Sheets.FeaturesSheet)
	str("VITRINE_MEDIA_BASE_URL", &c.Media.BaseURL)
	num("VITRINE_SYNC_CONCURRENCY", &c.Media.Concurrency)
	num("VITRINE_SYNC_RETRIES", &c.Media.Retries)
	flag("VITRINE_ALLOW_PRIVATE", &c.Media.AllowPrivate)
	flag("VITRINE_WATCH", &c.Watch.Enabled)
	dur("VITRINE_POLL_INTERVAL", &c.Watch.Interval)
	dur("VITRINE_RESYNC_HEARTBEAT", &c.Watch.Heartbeat)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_ACCESS_KEY", &c.S3.AccessKey)
	str("S3_SECRET_KEY", &c.S3.SecretKey)
	str("S3_REGION", &c.S3.Region)
	flag("S3_USE_SSL", &c.S3.UseSSL)

	return errors.Join(errs...)
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if !strings.Contains(c.Sheets.URLTemplate, "{sheet}") {
		return fmt.Errorf("sheets.url_template is required and must contain {sheet}")
	}
	if c.Sheets.VersionSheet == "" || c.Sheets.ProductsSheet == "" {
		return fmt.Errorf("sheets.version_sheet and sheets.products_sheet are required")
	}
	if c.Sheets.VersionRow < 0 || c.Sheets.VersionCol < 0 {
		return fmt.Errorf("sheets.version_row and version_col must be >= 0")
	}
	if c.Media.Concurrency <= 0 {
		return fmt.Errorf("media.concurrency must be > 0")
	}
	if c.Media.MaxMB <= 0 {
		return fmt.Errorf("media.max_mb must be > 0")
	}
	if c.Media.Retries < 0 {
		return fmt.Errorf("media.retries must be >= 0")
	}
	if c.Watch.Enabled && c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be > 0")
	}
	if c.S3.Endpoint != "" && (c.S3.AccessKey == "" || c.S3.SecretKey == "") {
		return fmt.Errorf("s3.access_key and s3.secret_key are required with s3.endpoint")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// MediaMaxBytes returns the per-file cap in bytes.
func (c *Config) MediaMaxBytes() int64 { return int64(c.Media.MaxMB) << 20 }
