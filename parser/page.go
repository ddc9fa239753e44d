package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Table labels used on item pages.
const (
	LabelUPC          = "UPC"
	LabelPriceInclTax = "Price (incl. tax)"
	LabelPriceExclTax = "Price (excl. tax)"
	LabelAvailability = "Availability"
)

// Structural anchors located on item, listing and index pages.
const (
	SelectorTable       = "table.table-striped"
	SelectorTitle       = "div.product_main h1"
	SelectorBreadcrumb  = "ul.breadcrumb li"
	SelectorRating      = "p.star-rating"
	SelectorImage       = "div.carousel-inner img"
	SelectorDescription = "#product_description ~ p"
	SelectorItemLinks   = "ol.row a"
	SelectorCategories  = "div.side_categories a"
)

// ErrAnchorMissing is wrapped by ParseError when a required element is absent.
var ErrAnchorMissing = errors.New("required element not found")

// ParseError reports an item page that could not be turned into a record.
type ParseError struct {
	URL    string
	Anchor string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (anchor=%q): %v", e.URL, e.Anchor, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FindTableCell looks label up in table. A row led by a <th> equal to label
// yields the row's first <td>; otherwise a <td> equal to label yields the
// cell delta columns to its right.
func FindTableCell(table *goquery.Selection, label string, delta int) (string, bool) {
	var (
		value string
		found bool
	)
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if th := row.Find("th").First(); th.Length() > 0 {
			if strings.TrimSpace(th.Text()) == label {
				value = strings.TrimSpace(row.Find("td").First().Text())
				found = true
				return false
			}
			return true
		}

		cells := row.Find("td")
		cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
			if strings.TrimSpace(cell.Text()) != label {
				return true
			}
			if j := i + delta; j >= 0 {
				if target := cells.Eq(j); target.Length() > 0 {
					value = strings.TrimSpace(target.Text())
					found = true
				}
			}
			return false
		})
		return !found
	})
	return value, found
}

// ExtractRaw pulls the raw field strings for one item page.
func ExtractRaw(doc *goquery.Document, pageURL string) (RawBook, error) {
	missing := func(anchor string) error {
		return &ParseError{URL: pageURL, Anchor: anchor, Err: ErrAnchorMissing}
	}

	table := doc.Find(SelectorTable).First()
	if table.Length() == 0 {
		return RawBook{}, missing(SelectorTable)
	}
	title := doc.Find(SelectorTitle).First()
	if title.Length() == 0 {
		return RawBook{}, missing(SelectorTitle)
	}
	crumbs := doc.Find(SelectorBreadcrumb)
	if crumbs.Length() < 2 {
		return RawBook{}, missing(SelectorBreadcrumb)
	}
	rating := doc.Find(SelectorRating).First()
	if rating.Length() == 0 {
		return RawBook{}, missing(SelectorRating)
	}
	imageSrc, ok := doc.Find(SelectorImage).First().Attr("src")
	if !ok || strings.TrimSpace(imageSrc) == "" {
		return RawBook{}, missing(SelectorImage)
	}

	raw := RawBook{
		URL:         pageURL,
		Title:       title.Text(),
		Description: doc.Find(SelectorDescription).First().Text(),
		Category:    crumbs.Eq(crumbs.Length() - 2).Text(),
		RatingLabel: ratingLabel(rating),
		ImageSrc:    imageSrc,
	}
	raw.UPC, _ = FindTableCell(table, LabelUPC, 1)
	raw.PriceInclTax, _ = FindTableCell(table, LabelPriceInclTax, 1)
	raw.PriceExclTax, _ = FindTableCell(table, LabelPriceExclTax, 1)
	raw.Availability, _ = FindTableCell(table, LabelAvailability, 1)
	return raw, nil
}

// ExtractBook extracts and normalizes the record of one item page.
func ExtractBook(doc *goquery.Document, pageURL string, logger *slog.Logger) (*models.Book, error) {
	raw, err := ExtractRaw(doc, pageURL)
	if err != nil {
		return nil, err
	}
	return NewBook(raw, logger), nil
}

// ratingLabel returns the class token that qualifies "star-rating".
func ratingLabel(sel *goquery.Selection) string {
	class, _ := sel.Attr("class")
	for _, token := range strings.Fields(class) {
		if token != "star-rating" {
			return token
		}
	}
	return ""
}

// ItemLinks returns every item anchor href of a listing page, in page order.
func ItemLinks(doc *goquery.Document) []string {
	var links []string
	doc.Find(SelectorItemLinks).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && strings.TrimSpace(href) != "" {
			links = append(links, href)
		}
	})
	return links
}

// CategoryLink is one entry of the site's category index.
type CategoryLink struct {
	Name string
	Href string
}

// CategoryLinks returns the category index anchors of the catalog root.
func CategoryLinks(doc *goquery.Document) []CategoryLink {
	var links []CategoryLink
	doc.Find(SelectorCategories).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		links = append(links, CategoryLink{Name: strings.TrimSpace(a.Text()), Href: href})
	})
	return links
}
