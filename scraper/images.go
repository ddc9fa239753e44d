package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

const imageCacheSize = 10000

// ImageStats summarises one batch of downloads.
type ImageStats struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// ImageDownloader saves cover images under a directory, named after the last
// path segment of their URL.
type ImageDownloader struct {
	fetcher     Fetcher
	dir         string
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger
	seen        *lru.Cache[string, struct{}]
}

// NewImageDownloader creates a downloader writing into dir.
func NewImageDownloader(fetcher Fetcher, dir string, concurrency int, metrics *Metrics, logger *slog.Logger) (*ImageDownloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	seen, err := lru.New[string, struct{}](imageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return &ImageDownloader{
		fetcher:     fetcher,
		dir:         dir,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With("component", "images"),
		seen:        seen,
	}, nil
}

// ImageFileName returns the last '/'-separated segment of rawURL.
func ImageFileName(rawURL string) string {
	name := rawURL
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return name
}

// Download fetches one image. It returns the written path, or "" when the
// image was skipped because it was already downloaded or the server did
// not return a success status.
func (d *ImageDownloader) Download(ctx context.Context, rawURL string) (string, error) {
	name := ImageFileName(rawURL)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("image url %q has no file name", rawURL)
	}
	if seen, _ := d.seen.ContainsOrAdd(rawURL, struct{}{}); seen {
		return "", nil
	}

	page, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if IsStatusError(err) {
			d.logger.Debug("image skipped", slog.String("url", rawURL), slog.Any("reason", err))
			return "", nil
		}
		return "", err
	}

	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, page.Body, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", path, err)
	}
	return path, nil
}

// DownloadAll fetches every URL with bounded concurrency. Individual failures
// are logged and counted; they never stop the batch.
func (d *ImageDownloader) DownloadAll(ctx context.Context, urls []string) ImageStats {
	var downloaded, skipped, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, u := range urls {
		if u == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			path, err := d.Download(ctx, u)
			switch {
			case err != nil:
				failed.Add(1)
				d.metrics.IncImages("failed")
				d.metrics.IncError(errorTypeLabel(err))
				d.logger.Error("image download failed", slog.String("url", u), slog.Any("error", err))
			case path == "":
				skipped.Add(1)
				d.metrics.IncImages("skipped")
			default:
				downloaded.Add(1)
				d.metrics.IncImages("downloaded")
				d.logger.Debug("image saved", slog.String("url", u), slog.String("path", path))
			}
			return nil
		})
	}
	_ = g.Wait()

	return ImageStats{
		Downloaded: int(downloaded.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
	}
}
