package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/models"
)

// Normalizer turns a product detail page into a NormalizedProduct using the
// site's selectors, falling back to embedded JSON-LD Product data.
type Normalizer struct {
	cfg    config.DetailConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewNormalizer builds a detail normalizer.
func NewNormalizer(cfg config.DetailConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		cfg:    cfg,
		logger: logger.With("component", "normalizer"),
		now:    time.Now,
	}
}

// jsonLDProduct is the subset of schema.org/Product we read.
type jsonLDProduct struct {
	SKU          string
	Name         string
	Description  string
	Price        string
	Currency     string
	Availability string
	Images       []string
}

// Normalize parses body, fetched from pageURL.
func (n *Normalizer) Normalize(body []byte, pageURL string) (*models.NormalizedProduct, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	ld := findJSONLDProduct(doc)
	raw := map[string]string{"url": pageURL}
	field := func(name, selector, fallback string) string {
		value := ""
		if selector != "" {
			value = CleanText(doc.Find(selector).First().Text())
		}
		if value == "" {
			value = strings.TrimSpace(fallback)
		}
		if value != "" {
			raw[name] = value
		}
		return value
	}

	product := &models.NormalizedProduct{
		SourceURL: pageURL,
		Raw:       raw,
		ScrapedAt: n.now().UTC(),
	}
	product.Title = field("title", n.cfg.TitleSelector, ld.Name)
	product.Description = field("description", n.cfg.DescriptionSelector, ld.Description)
	product.ExternalID = field("sku", n.cfg.SKUSelector, ld.SKU)
	if product.ExternalID == "" {
		product.ExternalID = urlExternalID(pageURL)
	}
	product.Slug = Slugify(product.Title)

	priceText := field("price", n.cfg.PriceSelector, ld.Price)
	if price, ok := ParsePrice(priceText); ok {
		product.Price = price
	} else if priceText != "" {
		n.logger.Debug("unparseable price", slog.String("url", pageURL), slog.String("price", priceText))
	}

	product.Currency = strings.ToUpper(strings.TrimSpace(ld.Currency))
	if product.Currency == "" {
		product.Currency = strings.ToUpper(n.cfg.Currency)
	}

	stockText := field("stock", n.cfg.StockSelector, availabilityText(ld.Availability))
	product.StockQuantity = ParseStock(stockText)
	product.Status = StockStatus(product.StockQuantity)

	product.Media = n.media(doc, pageURL, ld.Images)
	product.Attributes = n.attributes(doc)
	return product, nil
}

func (n *Normalizer) media(doc *goquery.Document, pageURL string, fallback []string) []models.Media {
	var sources []string
	if n.cfg.ImageSelector != "" {
		doc.Find(n.cfg.ImageSelector).Each(func(_ int, img *goquery.Selection) {
			for _, attr := range []string{"data-src", "src", "href"} {
				if value, ok := img.Attr(attr); ok && strings.TrimSpace(value) != "" {
					sources = append(sources, value)
					return
				}
			}
		})
	}
	if len(sources) == 0 {
		sources = fallback
	}

	base := siteRoot(pageURL)
	seen := make(map[string]struct{}, len(sources))
	media := make([]models.Media, 0, len(sources))
	for _, src := range sources {
		resolved := ResolveURL(base, src)
		if !IsAbsoluteURL(resolved) {
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		media = append(media, models.Media{URL: resolved, Position: len(media)})
	}
	return media
}

func (n *Normalizer) attributes(doc *goquery.Document) []models.Attribute {
	if n.cfg.AttributeRowSelector == "" {
		return nil
	}
	nameSel := n.cfg.AttributeNameSelector
	if nameSel == "" {
		nameSel = "th"
	}
	valueSel := n.cfg.AttributeValueSelector
	if valueSel == "" {
		valueSel = "td"
	}

	var attrs []models.Attribute
	doc.Find(n.cfg.AttributeRowSelector).Each(func(_ int, row *goquery.Selection) {
		name := CleanText(row.Find(nameSel).First().Text())
		value := CleanText(row.Find(valueSel).First().Text())
		if name == "" {
			return
		}
		attrs = append(attrs, models.Attribute{Name: name, Value: value})
	})
	return attrs
}

func findJSONLDProduct(doc *goquery.Document) jsonLDProduct {
	var found jsonLDProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(script.Text()), &payload); err != nil {
			return true
		}
		node, ok := productNode(payload)
		if !ok {
			return true
		}
		found = readJSONLDProduct(node)
		return false
	})
	return found
}

// productNode finds the first object typed Product, looking through arrays
// and @graph containers.
func productNode(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			if node, ok := productNode(item); ok {
				return node, true
			}
		}
	case map[string]any:
		if hasType(v["@type"], "Product") {
			return v, true
		}
		if graph, ok := v["@graph"]; ok {
			return productNode(graph)
		}
	}
	return nil, false
}

func hasType(value any, want string) bool {
	switch v := value.(type) {
	case string:
		return strings.EqualFold(v, want)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func readJSONLDProduct(node map[string]any) jsonLDProduct {
	product := jsonLDProduct{
		SKU:         toString(node["sku"]),
		Name:        toString(node["name"]),
		Description: toString(node["description"]),
	}
	if product.SKU == "" {
		product.SKU = toString(node["productID"])
	}

	offers := node["offers"]
	if list, ok := offers.([]any); ok && len(list) > 0 {
		offers = list[0]
	}
	if offer, ok := offers.(map[string]any); ok {
		product.Price = toString(offer["price"])
		if product.Price == "" {
			product.Price = toString(offer["lowPrice"])
		}
		product.Currency = toString(offer["priceCurrency"])
		product.Availability = toString(offer["availability"])
	}

	switch images := node["image"].(type) {
	case string:
		product.Images = []string{images}
	case []any:
		for _, image := range images {
			switch img := image.(type) {
			case string:
				product.Images = append(product.Images, img)
			case map[string]any:
				if u := toString(img["url"]); u != "" {
					product.Images = append(product.Images, u)
				}
			}
		}
	case map[string]any:
		if u := toString(images["url"]); u != "" {
			product.Images = []string{u}
		}
	}
	return product
}

// availabilityText turns "https://schema.org/InStock" into "in stock".
func availabilityText(availability string) string {
	if availability == "" {
		return ""
	}
	value := availability[strings.LastIndex(availability, "/")+1:]
	switch strings.ToLower(value) {
	case "instock", "limitedavailability", "onlineonly", "instoreonly":
		return "in stock"
	case "outofstock", "soldout", "discontinued":
		return "out of stock"
	}
	return ""
}

// urlExternalID derives an id from the last path segment of pageURL. A
// query string is part of the identity (product.php?id=7), so its sorted
// encoding is appended.
func urlExternalID(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	id := ""
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segment := strings.TrimSpace(segments[i]); segment != "" {
			id = strings.TrimSuffix(segment, ".html")
			break
		}
	}
	if query := parsed.Query().Encode(); query != "" {
		id += "?" + query
	}
	return id
}

// siteRoot is scheme://host of pageURL, the base for relative media paths.
func siteRoot(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return pageURL
	}
	return parsed.Scheme + "://" + parsed.Host
}
