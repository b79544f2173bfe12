package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Site modes.
const (
	ModeHTML = "html"
	ModeAPI  = "api"
)

// DefaultPaginationPattern matches "viewed 48 of 480 items" style summaries.
const DefaultPaginationPattern = `(?i)viewed\s+([\d.,]+)\s+of\s+([\d.,]+)`

// Site describes one target website and the selectors its adapter uses.
type Site struct {
	Name        string        `yaml:"name"`
	Slug        string        `yaml:"slug"`
	BaseURL     string        `yaml:"base_url"`
	CategoryURL string        `yaml:"category_url"`
	Mode        string        `yaml:"mode"`
	Listing     ListingConfig `yaml:"listing"`
	Detail      DetailConfig  `yaml:"detail"`
	API         APIConfig     `yaml:"api"`
}

// ListingConfig holds selectors for category listing pages.
type ListingConfig struct {
	ItemSelector       string `yaml:"item_selector"`
	AnchorSelector     string `yaml:"anchor_selector"`
	PaginationSelector string `yaml:"pagination_selector"`
	PaginationPattern  string `yaml:"pagination_pattern"`
	PageParam          string `yaml:"page_param"`
}

// DetailConfig holds selectors for product detail pages.
type DetailConfig struct {
	TitleSelector          string `yaml:"title_selector"`
	DescriptionSelector    string `yaml:"description_selector"`
	PriceSelector          string `yaml:"price_selector"`
	Currency               string `yaml:"currency"`
	SKUSelector            string `yaml:"sku_selector"`
	StockSelector          string `yaml:"stock_selector"`
	ImageSelector          string `yaml:"image_selector"`
	AttributeRowSelector   string `yaml:"attribute_row_selector"`
	AttributeNameSelector  string `yaml:"attribute_name_selector"`
	AttributeValueSelector string `yaml:"attribute_value_selector"`
}

// APIConfig holds dotted JSON paths for API-driven listings.
type APIConfig struct {
	ItemsPath   string `yaml:"items_path"`
	LinkField   string `yaml:"link_field"`
	TotalPath   string `yaml:"total_path"`
	PerPagePath string `yaml:"per_page_path"`
}

type sitesFile struct {
	Sites []Site `yaml:"sites"`
}

// LoadSites reads and validates a YAML site definition file.
func LoadSites(path string) ([]Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes site definitions, applies defaults, and validates them.
func ParseSites(data []byte) ([]Site, error) {
	var file sitesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	if len(file.Sites) == 0 {
		return nil, fmt.Errorf("sites file defines no sites")
	}

	seen := make(map[string]struct{}, len(file.Sites))
	for i := range file.Sites {
		site := &file.Sites[i]
		site.ApplyDefaults()
		if err := site.Validate(); err != nil {
			return nil, fmt.Errorf("site %d (%s): %w", i, site.Slug, err)
		}
		if _, dup := seen[site.Slug]; dup {
			return nil, fmt.Errorf("duplicate site slug %q", site.Slug)
		}
		seen[site.Slug] = struct{}{}
	}
	return file.Sites, nil
}

// FindSite returns the site with the given slug.
func FindSite(sites []Site, slug string) (Site, error) {
	for _, site := range sites {
		if site.Slug == slug {
			return site, nil
		}
	}
	return Site{}, fmt.Errorf("unknown site %q", slug)
}

// ApplyDefaults fills optional fields.
func (s *Site) ApplyDefaults() {
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	if s.Mode == "" {
		s.Mode = ModeHTML
	}
	if s.Slug == "" {
		s.Slug = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s.Name), " ", "-"))
	}
	if s.Listing.AnchorSelector == "" {
		s.Listing.AnchorSelector = "a"
	}
	if s.Listing.PaginationPattern == "" {
		s.Listing.PaginationPattern = DefaultPaginationPattern
	}
	if s.Listing.PageParam == "" {
		s.Listing.PageParam = "page"
	}
	if s.API.LinkField == "" {
		s.API.LinkField = "url"
	}
}

// Validate checks URLs, selectors, and patterns.
func (s Site) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if s.Slug == "" {
		return fmt.Errorf("slug cannot be empty")
	}
	if err := validateAbsoluteURL("base url", s.BaseURL); err != nil {
		return err
	}
	if s.CategoryURL != "" {
		if err := validateAbsoluteURL("category url", s.CategoryURL); err != nil {
			return err
		}
	}
	if s.Mode != ModeHTML && s.Mode != ModeAPI {
		return fmt.Errorf("mode must be %s or %s", ModeHTML, ModeAPI)
	}

	if s.Mode == ModeHTML && s.Listing.ItemSelector == "" {
		return fmt.Errorf("listing item selector cannot be empty")
	}
	if s.Mode == ModeAPI && s.API.ItemsPath == "" {
		return fmt.Errorf("api items path cannot be empty")
	}

	selectors := map[string]string{
		"listing.item_selector":           s.Listing.ItemSelector,
		"listing.anchor_selector":         s.Listing.AnchorSelector,
		"listing.pagination_selector":     s.Listing.PaginationSelector,
		"detail.title_selector":           s.Detail.TitleSelector,
		"detail.description_selector":     s.Detail.DescriptionSelector,
		"detail.price_selector":           s.Detail.PriceSelector,
		"detail.sku_selector":             s.Detail.SKUSelector,
		"detail.stock_selector":           s.Detail.StockSelector,
		"detail.image_selector":           s.Detail.ImageSelector,
		"detail.attribute_row_selector":   s.Detail.AttributeRowSelector,
		"detail.attribute_name_selector":  s.Detail.AttributeNameSelector,
		"detail.attribute_value_selector": s.Detail.AttributeValueSelector,
	}
	for field, selector := range selectors {
		if selector == "" {
			continue
		}
		if _, err := cascadia.Compile(selector); err != nil {
			return fmt.Errorf("%s: invalid selector %q: %w", field, selector, err)
		}
	}

	re, err := regexp.Compile(s.Listing.PaginationPattern)
	if err != nil {
		return fmt.Errorf("listing.pagination_pattern: %w", err)
	}
	if re.NumSubexp() < 2 {
		return fmt.Errorf("listing.pagination_pattern needs two capture groups")
	}
	return nil
}

// EntryURL is the listing URL used when the caller does not supply one.
func (s Site) EntryURL() string {
	if s.CategoryURL != "" {
		return s.CategoryURL
	}
	return s.BaseURL
}

func validateAbsoluteURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include a scheme and host", field)
	}
	return nil
}
