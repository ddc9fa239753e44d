package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

// RawBook holds the untouched strings pulled from an item page.
type RawBook struct {
	URL          string
	UPC          string
	Title        string
	PriceInclTax string
	PriceExclTax string
	Availability string
	Description  string
	Category     string
	RatingLabel  string
	ImageSrc     string
}

// NewBook normalizes raw into a record. A field that fails to normalize is
// logged and left null; the record itself is always returned.
func NewBook(raw RawBook, logger *slog.Logger) *models.Book {
	if logger == nil {
		logger = slog.Default()
	}
	fieldErr := func(field string, err error) {
		logger.Error("normalize field",
			slog.String("url", raw.URL),
			slog.String("field", field),
			slog.Any("error", err),
		)
	}

	book := &models.Book{
		URL:         raw.URL,
		UPC:         strings.TrimSpace(raw.UPC),
		Title:       strings.TrimSpace(raw.Title),
		Description: CleanDescription(raw.Description),
		Category:    Slugify(raw.Category),
	}

	if price, err := ParsePrice(raw.PriceInclTax); err != nil {
		fieldErr("price_including_tax", err)
	} else {
		book.PriceInclTax = decimal.NewNullDecimal(price)
	}
	if price, err := ParsePrice(raw.PriceExclTax); err != nil {
		fieldErr("price_excluding_tax", err)
	} else {
		book.PriceExclTax = decimal.NewNullDecimal(price)
	}
	if n, err := ParseCount(raw.Availability); err != nil {
		fieldErr("number_available", err)
	} else {
		book.Available = &n
	}
	if rating, err := ParseRating(raw.RatingLabel); err != nil {
		fieldErr("review_rating", err)
	} else {
		book.Rating = &rating
	}
	if imageURL, err := ResolveURL(raw.URL, raw.ImageSrc); err != nil {
		fieldErr("image_url", err)
	} else {
		book.ImageURL = imageURL
	}

	return book
}

// NormalizeBook re-applies the string normalizations to an already built
// record. Running it on a normalized record changes nothing.
func NormalizeBook(b *models.Book) {
	if b == nil {
		return
	}
	b.UPC = strings.TrimSpace(b.UPC)
	b.Title = strings.TrimSpace(b.Title)
	b.Description = CleanDescription(b.Description)
	b.Category = Slugify(b.Category)
	if b.ImageURL != "" {
		if resolved, err := ResolveURL(b.URL, b.ImageURL); err == nil {
			b.ImageURL = resolved
		}
	}
	if b.Rating != nil && (*b.Rating < 1 || *b.Rating > 5) {
		b.Rating = nil
	}
	if b.Available != nil && *b.Available < 0 {
		b.Available = nil
	}
}

// ValidateBook ensures the scraper captured the identity fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("book missing url")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title for %s", b.URL)
	}
	if strings.TrimSpace(b.Category) == "" {
		return fmt.Errorf("book missing category for %s", b.URL)
	}
	return nil
}
