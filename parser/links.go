package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var absoluteURL = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// LinkSource produces candidate product URLs from a listing page body.
type LinkSource interface {
	Extract(body []byte, baseURL string) []string
}

// IsAbsoluteURL reports whether raw starts with a scheme://.
func IsAbsoluteURL(raw string) bool {
	return absoluteURL.MatchString(raw)
}

// ResolveURL makes href absolute against baseURL. Absolute hrefs are kept
// verbatim, protocol-relative ones take the base scheme, and anything else is
// joined by trimming slashes and concatenating (no dot-segment resolution).
func ResolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if IsAbsoluteURL(href) {
		return href
	}
	if strings.HasPrefix(href, "//") {
		scheme := "https"
		if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme != "" {
			scheme = parsed.Scheme
		}
		return scheme + ":" + href
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/")
}

// LinkExtractor pulls product detail URLs out of listing markup: one
// anchor per grid item.
type LinkExtractor struct {
	itemSelector   string
	anchorSelector string
	logger         *slog.Logger
}

// NewLinkExtractor builds an extractor. anchorSelector defaults to "a".
func NewLinkExtractor(itemSelector, anchorSelector string, logger *slog.Logger) *LinkExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if anchorSelector == "" {
		anchorSelector = "a"
	}
	return &LinkExtractor{
		itemSelector:   itemSelector,
		anchorSelector: anchorSelector,
		logger:         logger.With("component", "links"),
	}
}

// Extract returns deduplicated absolute URLs in document order. Parse
// failures are logged and yield no links.
func (e *LinkExtractor) Extract(body []byte, baseURL string) (links []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("link extraction panicked", slog.String("base_url", baseURL), slog.Any("panic", r))
			links = nil
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("failed to parse listing page", slog.String("base_url", baseURL), slog.Any("error", err))
		return nil
	}

	set := newLinkSet()
	skipped := 0
	doc.Find(e.itemSelector).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find(e.anchorSelector).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			skipped++
			return
		}
		set.add(ResolveURL(baseURL, href))
	})
	if skipped > 0 {
		e.logger.Debug("listing items without anchor", slog.String("base_url", baseURL), slog.Int("skipped", skipped))
	}
	return set.links
}

// APILinkExtractor pulls product URLs out of a JSON listing response.
type APILinkExtractor struct {
	itemsPath string
	linkField string
	logger    *slog.Logger
}

// NewAPILinkExtractor builds an extractor reading linkField from every
// element of the array at itemsPath.
func NewAPILinkExtractor(itemsPath, linkField string, logger *slog.Logger) *APILinkExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if linkField == "" {
		linkField = "url"
	}
	return &APILinkExtractor{
		itemsPath: itemsPath,
		linkField: linkField,
		logger:    logger.With("component", "api_links"),
	}
}

// Extract implements LinkSource.
func (e *APILinkExtractor) Extract(body []byte, baseURL string) []string {
	items, err := e.items(body)
	if err != nil {
		e.logger.Warn("failed to parse api listing", slog.String("base_url", baseURL), slog.Any("error", err))
		return nil
	}

	set := newLinkSet()
	for _, item := range items {
		value, ok := lookupPath(item, e.linkField)
		if !ok {
			continue
		}
		set.add(ResolveURL(baseURL, toString(value)))
	}
	return set.links
}

func (e *APILinkExtractor) items(body []byte) ([]any, error) {
	doc, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	value, ok := lookupPath(doc, e.itemsPath)
	if !ok {
		return nil, fmt.Errorf("path %q not found", e.itemsPath)
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("path %q is not an array", e.itemsPath)
	}
	return items, nil
}

// linkSet keeps first-seen order and drops anything not absolute.
type linkSet struct {
	seen  map[string]struct{}
	links []string
}

func newLinkSet() *linkSet {
	return &linkSet{seen: make(map[string]struct{})}
}

func (s *linkSet) add(link string) bool {
	if link == "" || !IsAbsoluteURL(link) {
		return false
	}
	if _, ok := s.seen[link]; ok {
		return false
	}
	s.seen[link] = struct{}{}
	s.links = append(s.links, link)
	return true
}

// DedupeLinks removes repeats while keeping first occurrence order.
func DedupeLinks(links []string) []string {
	set := newLinkSet()
	for _, link := range links {
		set.add(link)
	}
	return set.links
}
