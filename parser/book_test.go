package parser

import (
	"reflect"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func sampleRaw() RawBook {
	return RawBook{
		URL:          "http://example.test/catalogue/book-1/index.html",
		UPC:          " a897fe39b1053632 ",
		Title:        "  A Light in the Attic ",
		PriceInclTax: "£51.77",
		PriceExclTax: "£49.77",
		Availability: "In stock (22 available)",
		Description:  " Funny; sad; wise ",
		Category:     "Poetry ",
		RatingLabel:  "Three",
		ImageSrc:     "../../media/cache/fe/72/fe72.jpg",
	}
}

func TestNewBook(t *testing.T) {
	book := NewBook(sampleRaw(), nil)

	if book.UPC != "a897fe39b1053632" {
		t.Fatalf("upc=%q", book.UPC)
	}
	if book.Title != "A Light in the Attic" {
		t.Fatalf("title=%q", book.Title)
	}
	if !book.PriceInclTax.Valid || book.PriceInclTax.Decimal.String() != "51.77" {
		t.Fatalf("price incl=%v", book.PriceInclTax)
	}
	if !book.PriceExclTax.Valid || book.PriceExclTax.Decimal.String() != "49.77" {
		t.Fatalf("price excl=%v", book.PriceExclTax)
	}
	if book.Available == nil || *book.Available != 22 {
		t.Fatalf("available=%v", book.Available)
	}
	if book.Rating == nil || *book.Rating != 3 {
		t.Fatalf("rating=%v", book.Rating)
	}
	if book.Category != "poetry" {
		t.Fatalf("category=%q", book.Category)
	}
	if book.Description != "Funny, sad, wise" {
		t.Fatalf("description=%q", book.Description)
	}
	if book.ImageURL != "http://example.test/media/cache/fe/72/fe72.jpg" {
		t.Fatalf("image=%q", book.ImageURL)
	}
}

func TestNewBookDegradesMalformedFields(t *testing.T) {
	raw := sampleRaw()
	raw.PriceInclTax = "free"
	raw.Availability = "In stock"
	raw.RatingLabel = "Zero"

	book := NewBook(raw, nil)
	if book == nil {
		t.Fatalf("record should still be produced")
	}
	if book.PriceInclTax.Valid {
		t.Fatalf("price incl should be null, got %v", book.PriceInclTax)
	}
	if !book.PriceExclTax.Valid {
		t.Fatalf("price excl should survive")
	}
	if book.Available != nil {
		t.Fatalf("available should be null, got %d", *book.Available)
	}
	if book.Rating != nil {
		t.Fatalf("rating should be null, got %d", *book.Rating)
	}
	if book.Title == "" || book.Category == "" {
		t.Fatalf("string fields should be populated: %+v", book)
	}
}

func TestNormalizeBookIdempotent(t *testing.T) {
	book := NewBook(sampleRaw(), nil)
	before := *book

	NormalizeBook(book)
	if !reflect.DeepEqual(before, *book) {
		t.Fatalf("normalizing a normalized record changed it:\nbefore=%+v\nafter=%+v", before, *book)
	}

	NormalizeBook(book)
	if !reflect.DeepEqual(before, *book) {
		t.Fatalf("second normalization changed the record")
	}
}

func TestNormalizeBookDropsOutOfRangeValues(t *testing.T) {
	rating, available := 9, -1
	book := &models.Book{
		URL:       "http://example.test/b",
		Title:     "T",
		Category:  "Science Fiction",
		Rating:    &rating,
		Available: &available,
	}
	NormalizeBook(book)
	if book.Rating != nil || book.Available != nil {
		t.Fatalf("out of range values should be nulled: %+v", book)
	}
	if book.Category != "science-fiction" {
		t.Fatalf("category=%q", book.Category)
	}
}

func TestValidateBook(t *testing.T) {
	tests := []struct {
		name    string
		book    *models.Book
		wantErr bool
	}{
		{name: "valid", book: &models.Book{URL: "http://example.test/b", Title: "T", Category: "poetry"}},
		{name: "nil", book: nil, wantErr: true},
		{name: "missing url", book: &models.Book{Title: "T", Category: "poetry"}, wantErr: true},
		{name: "missing title", book: &models.Book{URL: "http://example.test/b", Category: "poetry"}, wantErr: true},
		{name: "missing category", book: &models.Book{URL: "http://example.test/b", Title: "T"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(tt.book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
