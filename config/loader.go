package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Keys understood by Load. Flags are bound under the same names and
// environment variables use the SCRAPER_ prefix (SCRAPER_SRC, SCRAPER_MAX_PAGES).
const (
	KeySrc         = "src"
	KeyOutputDir   = "outputdir"
	KeyCategory    = "category"
	KeyVerbose     = "verbose"
	KeyParallel    = "parallel"
	KeyTimeout     = "timeout"
	KeyMaxPages    = "max-pages"
	KeyFormat      = "format"
	KeyUserAgent   = "user-agent"
	KeyLogFile     = "log-file"
	KeyMetricsAddr = "metrics-addr"
	KeySkipImages  = "skip-images"
	KeyBufferSize  = "buffer-size"
	KeyBatchSize   = "batch-size"
	KeyDedupeSize  = "dedupe-size"
	KeyConfigFile  = "config"
	EnvPrefix      = "SCRAPER"
)

// NewViper returns a viper instance with defaults and environment lookup
// configured. Callers bind flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers cfg's values as viper defaults.
func SetDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault(KeySrc, cfg.BaseURL)
	v.SetDefault(KeyOutputDir, cfg.OutputDir)
	v.SetDefault(KeyCategory, cfg.Category)
	v.SetDefault(KeyVerbose, cfg.Verbose)
	v.SetDefault(KeyParallel, cfg.Parallelism)
	v.SetDefault(KeyTimeout, cfg.Timeout)
	v.SetDefault(KeyMaxPages, cfg.MaxPages)
	v.SetDefault(KeyFormat, cfg.OutputFormat)
	v.SetDefault(KeyUserAgent, cfg.UserAgent)
	v.SetDefault(KeyLogFile, cfg.LogFile)
	v.SetDefault(KeyMetricsAddr, cfg.MetricsAddr)
	v.SetDefault(KeySkipImages, cfg.SkipImages)
	v.SetDefault(KeyBufferSize, cfg.PipelineBufferSize)
	v.SetDefault(KeyBatchSize, cfg.BatchSize)
	v.SetDefault(KeyDedupeSize, cfg.DedupeMaxSize)
}

// Load reads configuration from v. Priority (highest to lowest):
// flags > env vars > config file > defaults.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:            v.GetString(KeySrc),
		OutputDir:          v.GetString(KeyOutputDir),
		Category:           strings.TrimSpace(v.GetString(KeyCategory)),
		Verbose:            v.GetBool(KeyVerbose),
		Parallelism:        v.GetInt(KeyParallel),
		Timeout:            v.GetDuration(KeyTimeout),
		MaxPages:           v.GetInt(KeyMaxPages),
		OutputFormat:       strings.ToLower(v.GetString(KeyFormat)),
		UserAgent:          v.GetString(KeyUserAgent),
		LogFile:            v.GetString(KeyLogFile),
		MetricsAddr:        v.GetString(KeyMetricsAddr),
		SkipImages:         v.GetBool(KeySkipImages),
		PipelineBufferSize: v.GetInt(KeyBufferSize),
		BatchSize:          v.GetInt(KeyBatchSize),
		DedupeMaxSize:      v.GetInt(KeyDedupeSize),
	}
	return cfg, nil
}
