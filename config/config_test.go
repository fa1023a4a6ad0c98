package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sheets.URLTemplate = "https://sheets.example.com/export?sheet={sheet}"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	if err := DefaultConfig().Validate(); err == nil {
		t.Fatal("default config has no sheet URL and should not validate")
	}
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with sheet URL should be valid: %v", err)
	}
	if cfg.MediaMaxBytes() != 25<<20 {
		t.Errorf("MediaMaxBytes = %d", cfg.MediaMaxBytes())
	}
}

func TestLoad_YAML(t *testing.T) {
	yaml := `
listen: ":9090"
db_path: "/tmp/vitrine.db"
log_level: debug
sheets:
  url_template: "https://sheets.example.com/export?sheet={sheet}"
  features_sheet: Features
  version_row: 1
media:
  base_url: "https://cdn.example.com/img"
  concurrency: 8
watch:
  interval: 90s
  debounce: 2s
`
	dir := t.TempDir()
	path := filepath.Join(dir, "vitrine.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.DBPath != "/tmp/vitrine.db" {
		t.Errorf("listen/db = %q %q", cfg.Listen, cfg.DBPath)
	}
	if cfg.Sheets.ProductsSheet != "Products" {
		t.Errorf("default products sheet lost: %q", cfg.Sheets.ProductsSheet)
	}
	if cfg.Sheets.FeaturesSheet != "Features" || cfg.Sheets.VersionRow != 1 {
		t.Errorf("sheets = %+v", cfg.Sheets)
	}
	if cfg.Media.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Media.Concurrency)
	}
	if cfg.Watch.Interval != 90*time.Second || cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelDebug {
		t.Errorf("level = %v", lvl)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	// WHAT: A .env file fills settings absent from the YAML.
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	content := "VITRINE_SHEET_URL=https://sheets.example.com/x?sheet={sheet}\nVITRINE_SYNC_CONCURRENCY=3\n"
	if err := os.WriteFile(env, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("VITRINE_SHEET_URL")
		os.Unsetenv("VITRINE_SYNC_CONCURRENCY")
	})

	cfg, err := Load("", env)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Media.Concurrency != 3 {
		t.Errorf("concurrency = %d", cfg.Media.Concurrency)
	}
	if cfg.Sheets.URLTemplate != "https://sheets.example.com/x?sheet={sheet}" {
		t.Errorf("url template = %q", cfg.Sheets.URLTemplate)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"VITRINE_LISTEN":           ":7000",
		"VITRINE_POLL_INTERVAL":    "5m",
		"VITRINE_WATCH":            "false",
		"S3_ENDPOINT":              "minio:9000",
		"S3_ACCESS_KEY":            "ak",
		"S3_SECRET_KEY":            "sk",
		"S3_USE_SSL":               "false",
		"VITRINE_SYNC_CONCURRENCY": "",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := validConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" || cfg.Watch.Interval != 5*time.Minute || cfg.Watch.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.S3.Endpoint != "minio:9000" || cfg.S3.UseSSL {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.Media.Concurrency != 5 {
		t.Errorf("empty env value should not override, concurrency = %d", cfg.Media.Concurrency)
	}
}

func TestApplyEnv_BadValues(t *testing.T) {
	env := map[string]string{"VITRINE_SYNC_CONCURRENCY": "many", "VITRINE_POLL_INTERVAL": "often"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if err := validConfig().ApplyEnv(lookup); err == nil {
		t.Fatal("expected parse errors")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no placeholder", func(c *Config) { c.Sheets.URLTemplate = "https://x/export" }},
		{"zero concurrency", func(c *Config) { c.Media.Concurrency = 0 }},
		{"negative retries", func(c *Config) { c.Media.Retries = -1 }},
		{"zero interval", func(c *Config) { c.Watch.Interval = 0 }},
		{"s3 without keys", func(c *Config) { c.S3.Endpoint = "minio:9000" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"negative cell", func(c *Config) { c.Sheets.VersionCol = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
