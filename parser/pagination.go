package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/models"
)

// PaginationSource derives pagination from the first listing page.
type PaginationSource interface {
	Resolve(body []byte) (models.PaginationInfo, bool)
}

// NewPaginationInfo computes the page count. Both inputs must be positive;
// otherwise the info is absent.
func NewPaginationInfo(itemsPerPage, totalItems int) (models.PaginationInfo, bool) {
	if itemsPerPage <= 0 || totalItems <= 0 {
		return models.PaginationInfo{}, false
	}
	return models.PaginationInfo{
		ItemsPerPage: itemsPerPage,
		TotalItems:   totalItems,
		TotalPages:   (totalItems + itemsPerPage - 1) / itemsPerPage,
	}, true
}

// PaginationResolver reads a "viewed N of M" summary from listing markup.
type PaginationResolver struct {
	selector string
	pattern  *regexp.Regexp
	logger   *slog.Logger
}

// NewPaginationResolver builds a resolver. An empty selector searches the whole
// document text; an empty pattern uses config.DefaultPaginationPattern.
func NewPaginationResolver(selector, pattern string, logger *slog.Logger) (*PaginationResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if pattern == "" {
		pattern = config.DefaultPaginationPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pagination pattern: %w", err)
	}
	if re.NumSubexp() < 2 {
		return nil, fmt.Errorf("pagination pattern needs two capture groups")
	}
	return &PaginationResolver{
		selector: strings.TrimSpace(selector),
		pattern:  re,
		logger:   logger.With("component", "pagination"),
	}, nil
}

// Resolve returns the pagination info, or false when no usable marker exists.
func (r *PaginationResolver) Resolve(body []byte) (models.PaginationInfo, bool) {
	text, err := r.summaryText(body)
	if err != nil {
		r.logger.Warn("failed to parse listing page", slog.Any("error", err))
		return models.PaginationInfo{}, false
	}
	return r.ResolveText(text)
}

// ResolveText applies the marker pattern to already-extracted text.
func (r *PaginationResolver) ResolveText(text string) (models.PaginationInfo, bool) {
	match := r.pattern.FindStringSubmatch(text)
	if match == nil {
		r.logger.Debug("pagination marker not found")
		return models.PaginationInfo{}, false
	}
	perPage, ok := parseCount(match[1])
	if !ok {
		return models.PaginationInfo{}, false
	}
	total, ok := parseCount(match[2])
	if !ok {
		return models.PaginationInfo{}, false
	}
	return NewPaginationInfo(perPage, total)
}

func (r *PaginationResolver) summaryText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if r.selector == "" {
		return CleanText(doc.Text()), nil
	}
	return CleanText(doc.Find(r.selector).First().Text()), nil
}

// parseCount reads an integer that may carry thousands separators.
func parseCount(raw string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// APIPaginationResolver reads totals from a JSON listing response.
type APIPaginationResolver struct {
	totalPath   string
	perPagePath string
	itemsPath   string
}

// NewAPIPaginationResolver builds a resolver from dotted JSON paths. When
// perPagePath is empty the length of the items array is used as page size.
func NewAPIPaginationResolver(totalPath, perPagePath, itemsPath string) *APIPaginationResolver {
	return &APIPaginationResolver{totalPath: totalPath, perPagePath: perPagePath, itemsPath: itemsPath}
}

// Resolve implements PaginationSource.
func (r *APIPaginationResolver) Resolve(body []byte) (models.PaginationInfo, bool) {
	if r.totalPath == "" {
		return models.PaginationInfo{}, false
	}
	doc, err := decodeJSON(body)
	if err != nil {
		return models.PaginationInfo{}, false
	}
	totalValue, ok := lookupPath(doc, r.totalPath)
	if !ok {
		return models.PaginationInfo{}, false
	}
	total, ok := toInt(totalValue)
	if !ok {
		return models.PaginationInfo{}, false
	}

	var perPage int
	if r.perPagePath != "" {
		value, found := lookupPath(doc, r.perPagePath)
		if !found {
			return models.PaginationInfo{}, false
		}
		if perPage, ok = toInt(value); !ok {
			return models.PaginationInfo{}, false
		}
	} else if items, found := lookupPath(doc, r.itemsPath); found {
		if list, isList := items.([]any); isList {
			perPage = len(list)
		}
	}
	return NewPaginationInfo(perPage, total)
}

func decodeJSON(body []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return doc, nil
}

// lookupPath walks a dotted path ("data.items", "results.0.url") through
// decoded JSON. An empty path returns the document itself.
func lookupPath(doc any, path string) (any, bool) {
	current := doc
	if path == "" {
		return current, true
	}
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
		if f, err := v.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		return int(v), true
	case string:
		return parseCount(v)
	}
	return 0, false
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(value)
}
