package parser

import (
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/models"
)

// SiteAdapter bundles the site-specific extraction strategies used by the
// shared fetch and orchestration core.
type SiteAdapter struct {
	site       config.Site
	links      LinkSource
	pagination PaginationSource
	normalizer *Normalizer
}

// NewSiteAdapter builds the strategies for site according to its mode.
func NewSiteAdapter(site config.Site, logger *slog.Logger) (*SiteAdapter, error) {
	site.ApplyDefaults()
	if err := site.Validate(); err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Slug, err)
	}
	logger = nonNil(logger).With("site", site.Slug)

	adapter := &SiteAdapter{
		site:       site,
		normalizer: NewNormalizer(site.Detail, logger),
	}
	switch site.Mode {
	case config.ModeAPI:
		adapter.links = NewAPILinkExtractor(site.API.ItemsPath, site.API.LinkField, logger)
		adapter.pagination = NewAPIPaginationResolver(site.API.TotalPath, site.API.PerPagePath, site.API.ItemsPath)
	default:
		adapter.links = NewLinkExtractor(site.Listing.ItemSelector, site.Listing.AnchorSelector, logger)
		resolver, err := NewPaginationResolver(site.Listing.PaginationSelector, site.Listing.PaginationPattern, logger)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Slug, err)
		}
		adapter.pagination = resolver
	}
	return adapter, nil
}

// Site returns the definition the adapter was built from.
func (a *SiteAdapter) Site() config.Site { return a.site }

// PageParam is the query parameter carrying the page number.
func (a *SiteAdapter) PageParam() string { return a.site.Listing.PageParam }

// Links extracts product links from a listing body.
func (a *SiteAdapter) Links(body []byte, baseURL string) []string {
	return a.links.Extract(body, baseURL)
}

// Pagination resolves page counts from the first listing body.
func (a *SiteAdapter) Pagination(body []byte) (models.PaginationInfo, bool) {
	return a.pagination.Resolve(body)
}

// Normalize parses a detail page.
func (a *SiteAdapter) Normalize(body []byte, pageURL string) (*models.NormalizedProduct, error) {
	product, err := a.normalizer.Normalize(body, pageURL)
	if err != nil {
		return nil, err
	}
	if product.Currency == "" {
		product.Currency = a.site.Detail.Currency
	}
	return product, nil
}

func nonNil(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
