package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/logging"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
)

func main() {
	cmd := newRootCmd(config.NewViper(), os.Stdout)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:          "scraper",
		Short:        "Crawl a paginated book catalog into per-category CSV files",
		Long:         "Walks the catalog (or one category of it), extracts every book page and writes\none ';'-delimited CSV per category plus the cover images under the output directory.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, out)
		},
	}
	cmd.SetOut(out)

	flags := cmd.Flags()
	flags.StringP(config.KeySrc, "s", defaults.BaseURL, "catalog root URL")
	flags.StringP(config.KeyOutputDir, "o", defaults.OutputDir, "output directory")
	flags.StringP(config.KeyCategory, "c", "", "category to crawl (default: whole catalog)")
	flags.BoolP(config.KeyVerbose, "v", false, "echo logs to the console")
	flags.Int(config.KeyParallel, defaults.Parallelism, "concurrent item page fetches")
	flags.Duration(config.KeyTimeout, defaults.Timeout, "per-request timeout")
	flags.Int(config.KeyMaxPages, defaults.MaxPages, "safety cap on listing pages walked")
	flags.String(config.KeyFormat, defaults.OutputFormat, "output format: csv, json, or dual")
	flags.String(config.KeyLogFile, "", "log file path (default {outputdir}/scraper.log)")
	flags.String(config.KeyMetricsAddr, "", "Prometheus metrics listen address (e.g. :9090)")
	flags.Bool(config.KeySkipImages, false, "do not download cover images")
	flags.String(config.KeyConfigFile, "", "YAML config file")

	return cmd
}

// run returns an error only for failures before the crawl starts. Once it
// starts, problems are reported through the summary and the process exits 0.
func run(ctx context.Context, v *viper.Viper, out io.Writer) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for _, dir := range []string{cfg.OutputDir, cfg.BooksDir(), cfg.ImagesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	logger, err := logging.New(logging.Options{Verbose: cfg.Verbose, LogFile: cfg.LogPath()})
	if err != nil {
		return err
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	s, err := scraper.NewScraper(cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}
	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics, logger.Logger)

	logger.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("category", cfg.Category),
		slog.Int("workers", cfg.Parallelism),
	)

	p, err := pipeline.NewPipeline(ctx, writer, cfg)
	if err != nil {
		if cerr := writer.Close(); cerr != nil {
			logger.Error("close writer", slog.Any("error", cerr))
		}
		return fmt.Errorf("creating pipeline: %w", err)
	}
	p.SetLogger(logger.Logger)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, err := s.Run(ctx, p)
	if err != nil {
		logger.Warn("scrape interrupted", slog.Any("error", err))
	}

	if err := p.Close(); err != nil {
		logger.Error("pipeline shutdown failed", slog.Any("error", err))
	}
	if err := writer.Validate(); err != nil {
		logger.Error("output validation failed", slog.Any("error", err))
	}
	if err := writer.Close(); err != nil {
		logger.Error("close writer", slog.Any("error", err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(out, summary{
		result:    result,
		written:   p.Processed(),
		errors:    logger.Tally.Errors(),
		duration:  time.Since(startTime),
		outputDir: cfg.OutputDir,
		logPath:   cfg.LogPath(),
	})
	return nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

type summary struct {
	result    *models.ScraperResult
	written   int64
	errors    int
	duration  time.Duration
	outputDir string
	logPath   string
}

func printSummary(out io.Writer, s summary) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Scrape complete")

	if r := s.result; r != nil {
		listing := r.ListingURL
		if r.Category != "" && !r.Scoped {
			listing += " (category not found, full catalog)"
		}
		fmt.Fprintf(out, "  Listing:       %s\n", listing)
		fmt.Fprintf(out, "  Pages walked:  %d\n", r.PageCount)
		fmt.Fprintf(out, "  Discovered:    %d\n", r.DiscoveredCount)
		fmt.Fprintf(out, "  Extracted:     %d\n", r.TotalCount)
		fmt.Fprintf(out, "  Images:        %d saved, %d skipped\n", r.ImagesDownloaded, r.ImagesSkipped)
		fmt.Fprintf(out, "  Requests:      %d\n", r.RequestCount)
		if len(r.ErrorsByType) > 0 {
			fmt.Fprintf(out, "  Error types:   %v\n", r.ErrorsByType)
		}
	}
	fmt.Fprintf(out, "  Written:       %d\n", s.written)
	fmt.Fprintf(out, "  Duration:      %v\n", s.duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Output dir:    %s\n", s.outputDir)
	fmt.Fprintln(out, separator)

	if s.errors == 0 {
		fmt.Fprintln(out, "Scraping completed without errors.")
		return
	}
	fmt.Fprintf(out, "Scraping encountered %d error(s), check the logs at %s.\n", s.errors, s.logPath)
}
