package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoCurrencySymbol is returned when a price string carries no currency symbol.
	ErrNoCurrencySymbol = errors.New("no currency symbol")
	// ErrNoCount is returned when a string holds no whole-number token.
	ErrNoCount = errors.New("no number found")
	// ErrUnknownRating is returned for labels outside One..Five.
	ErrUnknownRating = errors.New("unknown rating label")
)

var ratings = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// ParsePrice strips the first currency symbol found in text and parses the
// remainder as a decimal, e.g. "£51.77" -> 51.77.
func ParsePrice(text string) (decimal.Decimal, error) {
	symbol := rune(-1)
	for _, r := range text {
		if unicode.Is(unicode.Sc, r) {
			symbol = r
			break
		}
	}
	if symbol < 0 {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", text, ErrNoCurrencySymbol)
	}

	amount := strings.TrimSpace(strings.ReplaceAll(text, string(symbol), ""))
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", text, err)
	}
	return value, nil
}

var parenStripper = strings.NewReplacer("(", "", ")", "")

// ParseCount returns the first whole-number token of text once parentheses
// are dropped: "In stock (22 available)" -> 22, "(3) Available" -> 3.
func ParseCount(text string) (int, error) {
	for _, token := range strings.Fields(parenStripper.Replace(text)) {
		if !isDigits(token) {
			continue
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			return 0, fmt.Errorf("parse count %q: %w", text, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("parse count %q: %w", text, ErrNoCount)
}

// ParseRating maps a star-rating label to its value.
func ParseRating(label string) (int, error) {
	value, ok := ratings[strings.TrimSpace(label)]
	if !ok {
		return 0, fmt.Errorf("parse rating %q: %w", label, ErrUnknownRating)
	}
	return value, nil
}

// Slugify lower-cases a category name and joins its words with hyphens.
func Slugify(text string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(text)), " ", "-")
}

// ResolveURL joins ref onto base. Absolute refs are returned unchanged.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// CleanDescription trims text and swaps semicolons for commas so the value
// cannot break the ';'-delimited output.
func CleanDescription(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), ";", ",")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
