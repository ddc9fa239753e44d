package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "unsupported scheme",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "ftp://books.toscrape.com/"
			},
			wantErr: "scheme",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "empty output dir",
			mutate: func(cfg *Config) {
				cfg.OutputDir = ""
			},
			wantErr: "output dir",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.BooksDir() != filepath.Join("data", "books") || cfg.ImagesDir() != filepath.Join("data", "images") {
		t.Fatalf("unexpected output layout: %s %s", cfg.BooksDir(), cfg.ImagesDir())
	}
	if cfg.LogPath() != filepath.Join("data", "scraper.log") {
		t.Fatalf("log path=%s", cfg.LogPath())
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultConfig()
	if cfg.BaseURL != want.BaseURL || cfg.OutputDir != want.OutputDir || cfg.Parallelism != want.Parallelism {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Timeout != want.Timeout {
		t.Fatalf("timeout=%s, want %s", cfg.Timeout, want.Timeout)
	}
	if cfg.Category != "" {
		t.Fatalf("category should default to unscoped, got %q", cfg.Category)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRAPER_SRC", "http://example.test/")
	t.Setenv("SCRAPER_OUTPUTDIR", "out")
	t.Setenv("SCRAPER_MAX_PAGES", "7")
	t.Setenv("SCRAPER_FORMAT", "JSON")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://example.test/" || cfg.OutputDir != "out" || cfg.MaxPages != 7 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.OutputFormat != "json" {
		t.Fatalf("format=%q, want json", cfg.OutputFormat)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	content := "category: Poetry\nparallel: 4\ntimeout: 3s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := NewViper()
	v.Set(KeyConfigFile, path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Category != "Poetry" || cfg.Parallelism != 4 || cfg.Timeout != 3*time.Second {
		t.Fatalf("file not applied: %+v", cfg)
	}
}
