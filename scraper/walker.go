package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ListingKind selects the pagination URL convention of a listing root.
type ListingKind int

const (
	// ListingCatalog is the site root; pages live at catalogue/page-N.html.
	ListingCatalog ListingKind = iota
	// ListingCategory is a category index.html; pages replace index.html
	// with page-N.html.
	ListingCategory
)

func (k ListingKind) String() string {
	switch k {
	case ListingCatalog:
		return "catalog"
	case ListingCategory:
		return "category"
	default:
		return "unknown"
	}
}

const categoryIndexSuffix = "index.html"

// Listing is a paginated root the walker starts from.
type Listing struct {
	URL  string
	Kind ListingKind
}

// PageURL returns the URL of page n (1-based) of the listing.
func (l Listing) PageURL(n int) (string, error) {
	page := fmt.Sprintf("page-%d.html", n)
	if l.Kind == ListingCategory {
		if !strings.HasSuffix(l.URL, categoryIndexSuffix) {
			return "", fmt.Errorf("category listing %s does not end in %s", l.URL, categoryIndexSuffix)
		}
		return strings.TrimSuffix(l.URL, categoryIndexSuffix) + page, nil
	}

	base := l.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return parser.ResolveURL(base, "catalogue/"+page)
}

// URLSet is a set of absolute URLs safe for concurrent insertion.
type URLSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewURLSet returns an empty set.
func NewURLSet() *URLSet {
	return &URLSet{urls: make(map[string]struct{})}
}

// Add inserts u and reports whether it was new.
func (s *URLSet) Add(u string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[u]; ok {
		return false
	}
	s.urls[u] = struct{}{}
	return true
}

// Len returns the number of URLs held.
func (s *URLSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Slice returns the URLs sorted lexically.
func (s *URLSet) Slice() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// WalkResult is the outcome of walking one listing.
type WalkResult struct {
	URLs  []string
	Pages int
	// Fallback is set when no paginated page succeeded and the root page
	// itself was scraped.
	Fallback bool
}

// Walker discovers item URLs by paginating a listing until a page fetch fails
// or a page brings no new items.
type Walker struct {
	fetcher  Fetcher
	maxPages int
	metrics  *Metrics
	logger   *slog.Logger
}

// NewWalker creates a walker. maxPages caps the page cursor; zero or less
// means no cap.
func NewWalker(fetcher Fetcher, maxPages int, metrics *Metrics, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		fetcher:  fetcher,
		maxPages: maxPages,
		metrics:  metrics,
		logger:   logger.With("component", "walker"),
	}
}

// Walk paginates listing from page 1. The walk ends at the first page whose
// fetch fails or that yields no item not already seen; if page 1 already
// ends it, the root page's items are used instead.
func (w *Walker) Walk(ctx context.Context, listing Listing) (*WalkResult, error) {
	set := NewURLSet()
	result := &WalkResult{}

	for n := 1; w.maxPages <= 0 || n <= w.maxPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL, err := listing.PageURL(n)
		if err != nil {
			w.logger.Debug("no paginated form", slog.String("listing", listing.URL), slog.Any("error", err))
			break
		}
		added, err := w.collect(ctx, pageURL, set)
		if err != nil {
			w.logger.Debug("pagination ended",
				slog.String("listing", listing.URL),
				slog.Int("page", n),
				slog.Any("reason", err),
			)
			break
		}
		if added == 0 {
			w.logger.Debug("pagination ended",
				slog.String("listing", listing.URL),
				slog.Int("page", n),
				slog.String("reason", "no new items"),
			)
			break
		}
		result.Pages++
		w.logger.Info("listing page walked",
			slog.String("url", pageURL),
			slog.Int("page", n),
			slog.Int("new_items", added),
			slog.Int("total_items", set.Len()),
		)
		if w.maxPages > 0 && n == w.maxPages {
			w.logger.Warn("page cap reached", slog.String("listing", listing.URL), slog.Int("max_pages", w.maxPages))
		}
	}

	if result.Pages == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := w.collect(ctx, listing.URL, set); err != nil {
			return nil, fmt.Errorf("walk listing %s: %w", listing.URL, err)
		}
		result.Pages = 1
		result.Fallback = true
		w.logger.Info("single page listing", slog.String("url", listing.URL), slog.Int("total_items", set.Len()))
	}

	result.URLs = set.Slice()
	return result, nil
}

// collect fetches one listing page and adds its item URLs to set.
func (w *Walker) collect(ctx context.Context, pageURL string, set *URLSet) (int, error) {
	page, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return 0, err
	}
	doc, err := page.Document()
	if err != nil {
		return 0, err
	}
	w.metrics.IncListingPages()

	added := 0
	for _, href := range parser.ItemLinks(doc) {
		abs, err := parser.ResolveURL(pageURL, href)
		if err != nil {
			w.logger.Debug("skip item link", slog.String("href", href), slog.Any("error", err))
			continue
		}
		if set.Add(abs) {
			added++
		}
	}
	return added, nil
}
