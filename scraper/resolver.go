package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// Resolver maps a category name to its listing root via the catalog's
// category index.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewResolver creates a resolver that reads category indexes through fetcher.
func NewResolver(fetcher Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, logger: logger.With("component", "resolver")}
}

// Resolve fetches rootURL and returns the absolute URL of the first category
// anchor whose slug equals the slug of name. found is false when no anchor
// matches; err is set only when the root page itself cannot be read.
func (r *Resolver) Resolve(ctx context.Context, rootURL, name string) (categoryURL string, found bool, err error) {
	want := parser.Slugify(name)
	if want == "" {
		return "", false, nil
	}

	page, err := r.fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return "", false, fmt.Errorf("resolve category %q: %w", name, err)
	}
	doc, err := page.Document()
	if err != nil {
		return "", false, fmt.Errorf("resolve category %q: %w", name, err)
	}

	for _, link := range parser.CategoryLinks(doc) {
		if parser.Slugify(link.Name) != want {
			continue
		}
		abs, err := parser.ResolveURL(rootURL, link.Href)
		if err != nil {
			r.logger.Debug("skip category link", slog.String("href", link.Href), slog.Any("error", err))
			continue
		}
		r.logger.Debug("category resolved", slog.String("category", name), slog.String("url", abs))
		return abs, true, nil
	}
	return "", false, nil
}
