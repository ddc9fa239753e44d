package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the demo catalog crawled when no source is given.
const DefaultBaseURL = "http://books.toscrape.com/"

// Config holds scraper configuration.
type Config struct {
	BaseURL      string
	OutputDir    string
	Category     string // empty crawls the whole catalog
	Verbose      bool
	Parallelism  int
	Timeout      time.Duration
	MaxPages     int
	OutputFormat string // csv, json, or dual
	UserAgent    string
	LogFile      string
	MetricsAddr  string
	SkipImages   bool

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            DefaultBaseURL,
		OutputDir:          "data",
		Parallelism:        16,
		Timeout:            10 * time.Second,
		MaxPages:           1000,
		OutputFormat:       "csv",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      100000,
	}
}

// BooksDir is where the per-category CSV files are written.
func (c *Config) BooksDir() string {
	return filepath.Join(c.OutputDir, "books")
}

// ImagesDir is where cover images are written.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.OutputDir, "images")
}

// LogPath returns the log file location, defaulting under OutputDir.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.OutputDir, "scraper.log")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}
