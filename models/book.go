// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book is one product record extracted from an item page. URL is the
// identity key within a crawl; numeric fields are nil/invalid when the
// source text could not be normalized.
type Book struct {
	URL          string              `csv:"product_page_url" json:"product_page_url"`
	UPC          string              `csv:"universal_product_code" json:"universal_product_code"`
	Title        string              `csv:"title" json:"title"`
	PriceInclTax decimal.NullDecimal `csv:"price_including_tax" json:"price_including_tax"`
	PriceExclTax decimal.NullDecimal `csv:"price_excluding_tax" json:"price_excluding_tax"`
	Available    *int                `csv:"number_available" json:"number_available"`
	Description  string              `csv:"product_description" json:"product_description"`
	Category     string              `csv:"category" json:"category"`
	Rating       *int                `csv:"review_rating" json:"review_rating"`
	ImageURL     string              `csv:"image_url" json:"image_url"`
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	StartTime time.Time
	EndTime   time.Time

	ListingURL string
	Category   string
	Scoped     bool

	DiscoveredCount  int
	TotalCount       int
	ImagesDownloaded int
	ImagesSkipped    int

	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RequestCount int
	PageCount    int
}
