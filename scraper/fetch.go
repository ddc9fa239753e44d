package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// Page is a successfully fetched resource.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Document parses the page body as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", p.URL, err)
	}
	return doc, nil
}

// Fetcher retrieves one URL. Any non-success status is returned as an error,
// the same as a transport failure.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// CollyFetcher fetches through a colly collector. Each call runs on a clone,
// so callbacks never leak between concurrent fetches while the HTTP backend
// is shared.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics
	logger    *slog.Logger
	requests  atomic.Int64
}

// NewCollyFetcher builds a synchronous collector configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics, logger *slog.Logger) *CollyFetcher {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Parallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &CollyFetcher{
		collector: collector,
		metrics:   metrics,
		logger:    logger.With("component", "fetcher"),
	}
}

// Requests returns the number of requests issued so far.
func (f *CollyFetcher) Requests() int64 {
	return f.requests.Load()
}

// Fetch implements Fetcher.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	var (
		page     *Page
		fetchErr error
	)
	c := f.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		cause := classifyError(err, status)
		if cause == nil {
			cause = fmt.Errorf("http status %d", status)
		}
		fetchErr = &FetchError{URL: rawURL, StatusCode: status, Err: cause}
	})

	f.requests.Add(1)
	start := time.Now()
	visitErr := c.Visit(rawURL)
	f.metrics.ObserveDuration(time.Since(start))

	if fetchErr == nil && visitErr != nil {
		fetchErr = &FetchError{URL: rawURL, Err: classifyError(visitErr, 0)}
	}
	if fetchErr == nil && page == nil {
		fetchErr = &FetchError{URL: rawURL, Err: fmt.Errorf("no response")}
	}
	if fetchErr != nil {
		f.metrics.IncRequest("error")
		f.logger.Debug("fetch failed", slog.String("url", rawURL), slog.Any("error", fetchErr))
		return nil, fetchErr
	}

	f.metrics.IncRequest("ok")
	f.logger.Debug("fetch complete",
		slog.String("url", rawURL),
		slog.Int("status", page.StatusCode),
		slog.Int("size", len(page.Body)),
	)
	return page, nil
}
