// Package parser turns listing and detail page bodies into pagination info,
// product links, and normalized products.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/go-catalog-scraper/models"
)

// Product statuses.
const (
	StatusActive     = "active"
	StatusOutOfStock = "out_of_stock"
)

var (
	priceToken   = regexp.MustCompile(`\d[\d.,\s]*`)
	integerToken = regexp.MustCompile(`\d+`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// ValidateProduct ensures the normalizer captured the required fields.
func ValidateProduct(p *models.NormalizedProduct) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.ExternalID) == "" {
		return fmt.Errorf("product missing external id for %s", p.SourceURL)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title for %s", p.SourceURL)
	}
	if p.Price < 0 {
		return fmt.Errorf("product %s has negative price", p.ExternalID)
	}
	return nil
}

// ParsePrice extracts a decimal amount from display text such as
// "R$ 1.234,56", "$1,234.56" or "12,50 EUR".
func ParsePrice(text string) (float64, bool) {
	token := priceToken.FindString(text)
	if token == "" {
		return 0, false
	}
	token = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, token)
	token = strings.TrimRight(token, ".,")

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		// A lone comma followed by exactly three digits is a thousands separator.
		if strings.Count(token, ",") == 1 && len(token)-lastComma-1 != 3 {
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(token, ".") > 1 {
			token = strings.ReplaceAll(token, ".", "")
		}
	}

	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseStock reads a stock quantity from availability text. The first integer
// wins; text without digits counts as one unit when it reads as available.
func ParseStock(text string) int {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0
	}
	if digits := integerToken.FindString(text); digits != "" {
		n, err := strconv.Atoi(digits)
		if err == nil {
			return n
		}
	}
	if strings.Contains(text, "out of stock") || strings.Contains(text, "unavailable") || strings.Contains(text, "sold out") {
		return 0
	}
	if strings.Contains(text, "in stock") || strings.Contains(text, "instock") || strings.Contains(text, "available") {
		return 1
	}
	return 0
}

// StockStatus maps a quantity onto a product status.
func StockStatus(quantity int) string {
	if quantity > 0 {
		return StatusActive
	}
	return StatusOutOfStock
}

// Slugify lower-cases title and joins its ASCII letters and digits with dashes.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// CleanText trims and collapses whitespace.
func CleanText(text string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}
