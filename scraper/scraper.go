package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

const progressEvery = 50

// Scraper runs one crawl: resolve the category, walk its listing, extract
// every item page, then hand the records and their images to persistence.
type Scraper struct {
	cfg      *config.Config
	fetcher  *CollyFetcher
	walker   *Walker
	resolver *Resolver
	Metrics  *Metrics
	logger   *slog.Logger

	errorCount int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewMetrics()
	fetcher := NewCollyFetcher(cfg, metrics, logger)

	return &Scraper{
		cfg:          cfg,
		fetcher:      fetcher,
		walker:       NewWalker(fetcher, cfg.MaxPages, metrics, logger),
		resolver:     NewResolver(fetcher, logger),
		Metrics:      metrics,
		logger:       logger.With("component", "scraper"),
		errorsByType: make(map[string]int),
	}, nil
}

// Run executes the crawl and streams the extracted records through p. Item,
// image and resolution failures are logged and counted, never returned; an
// error is returned only when ctx is cancelled.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.ScraperResult{
		StartTime: time.Now(),
		Category:  s.cfg.Category,
	}
	finish := func() *models.ScraperResult {
		result.EndTime = time.Now()
		result.RequestCount = int(s.fetcher.Requests())
		result.ErrorCount = int(atomic.LoadInt64(&s.errorCount))
		result.FailedURLs = s.snapshotFailedURLs()
		result.ErrorsByType = s.snapshotErrors()
		return result
	}

	listing := s.resolve(ctx)
	result.ListingURL = listing.URL
	result.Scoped = listing.Kind == ListingCategory

	walk, err := s.walker.Walk(ctx, listing)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(), ctxErr
		}
		s.recordError(listing.URL, err)
		s.logger.Error("listing discovery failed", slog.String("url", listing.URL), slog.Any("error", err))
		return finish(), nil
	}
	result.PageCount = walk.Pages
	result.DiscoveredCount = len(walk.URLs)
	s.logger.Info("discovery complete",
		slog.String("listing", listing.URL),
		slog.Int("pages", walk.Pages),
		slog.Int("items", len(walk.URLs)),
	)

	books := s.extractAll(ctx, walk.URLs)
	result.TotalCount = len(books)
	if err := ctx.Err(); err != nil {
		return finish(), err
	}

	// Image URLs are read before the records are handed over; the
	// pipeline owns them from then on.
	imageURLs := make([]string, 0, len(books))
	for _, book := range books {
		imageURLs = append(imageURLs, book.ImageURL)
	}

	if err := p.Process(books...); err != nil {
		s.recordError("", err)
		s.logger.Error("persist records failed", slog.Int("records", len(books)), slog.Any("error", err))
	}

	if !s.cfg.SkipImages {
		stats, err := s.downloadImages(ctx, imageURLs)
		if err != nil {
			s.logger.Error("image downloader unavailable", slog.Any("error", err))
		}
		result.ImagesDownloaded = stats.Downloaded
		result.ImagesSkipped = stats.Skipped
	}

	return finish(), ctx.Err()
}

// resolve picks the listing to walk. An unknown or unreadable category falls
// back to the whole catalog.
func (s *Scraper) resolve(ctx context.Context) Listing {
	catalog := Listing{URL: s.cfg.BaseURL, Kind: ListingCatalog}
	if s.cfg.Category == "" {
		return catalog
	}

	categoryURL, found, err := s.resolver.Resolve(ctx, s.cfg.BaseURL, s.cfg.Category)
	switch {
	case err != nil:
		s.recordError(s.cfg.BaseURL, err)
		s.logger.Error("category resolution failed, crawling full catalog",
			slog.String("category", s.cfg.Category),
			slog.Any("error", err),
		)
		return catalog
	case !found:
		s.recordError(s.cfg.BaseURL, ErrCategoryNotFound)
		s.logger.Error("category not found, crawling full catalog",
			slog.String("category", s.cfg.Category),
			slog.String("root", s.cfg.BaseURL),
		)
		return catalog
	}

	s.logger.Info("category resolved", slog.String("category", s.cfg.Category), slog.String("url", categoryURL))
	return Listing{URL: categoryURL, Kind: ListingCategory}
}

type extraction struct {
	url  string
	book *models.Book
	err  error
}

// extractAll fetches and extracts every URL with bounded concurrency. Results
// are funnelled to a single collector so the record slice has one writer.
func (s *Scraper) extractAll(ctx context.Context, urls []string) []*models.Book {
	results := make(chan extraction, s.cfg.Parallelism)

	go func() {
		var g errgroup.Group
		g.SetLimit(s.cfg.Parallelism)
		for _, u := range urls {
			if ctx.Err() != nil {
				break
			}
			u := u
			g.Go(func() error {
				book, err := s.extract(ctx, u)
				results <- extraction{url: u, book: book, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	books := make([]*models.Book, 0, len(urls))
	done := 0
	for r := range results {
		done++
		if done%progressEvery == 0 {
			s.logger.Debug("extract progress",
				slog.Int("done", done),
				slog.Int("total", len(urls)),
				slog.Int("records", len(books)),
			)
		}
		if r.err != nil {
			s.recordError(r.url, r.err)
			s.logger.Error("item extraction failed", slog.String("url", r.url), slog.Any("error", r.err))
			continue
		}
		books = append(books, r.book)
	}
	return books
}

func (s *Scraper) extract(ctx context.Context, itemURL string) (*models.Book, error) {
	page, err := s.fetcher.Fetch(ctx, itemURL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}
	book, err := parser.ExtractBook(doc, itemURL, s.logger)
	if err != nil {
		return nil, err
	}
	s.Metrics.IncItems()
	return book, nil
}

func (s *Scraper) downloadImages(ctx context.Context, urls []string) (ImageStats, error) {
	downloader, err := NewImageDownloader(s.fetcher, s.cfg.ImagesDir(), s.cfg.Parallelism, s.Metrics, s.logger)
	if err != nil {
		return ImageStats{}, err
	}
	stats := downloader.DownloadAll(ctx, urls)
	if stats.Failed > 0 {
		atomic.AddInt64(&s.errorCount, int64(stats.Failed))
	}
	s.logger.Info("images processed",
		slog.Int("downloaded", stats.Downloaded),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *Scraper) recordError(rawURL string, err error) {
	atomic.AddInt64(&s.errorCount, 1)
	category := errorTypeLabel(err)
	s.Metrics.IncError(category)

	s.mu.Lock()
	s.errorsByType[category]++
	if rawURL != "" {
		s.failedURLs = append(s.failedURLs, rawURL)
	}
	s.mu.Unlock()
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
