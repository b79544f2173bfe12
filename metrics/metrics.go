// Package metrics bundles the Prometheus collectors used across the scraper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetches, pages, and products.
// All methods are safe on a nil receiver.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RetriesTotal     prometheus.Counter
	RateLimitedTotal prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	PagesTotal       *prometheus.CounterVec
	LinksDiscovered  prometheus.Counter
	ProductsTotal    *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	rateLimited := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_rate_limited_total",
			Help: "Total number of rate-limit backoffs (HTTP 429/503).",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing and detail pages by final outcome.",
		},
		[]string{"outcome"},
	)
	links := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_links_discovered_total",
			Help: "Product links extracted from listing pages.",
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_products_total",
			Help: "Products handed to persistence by outcome.",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(requests, requestDuration, retries, rateLimited, errorsTotal, pages, links, products)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		RetriesTotal:     retries,
		RateLimitedTotal: rateLimited,
		ErrorsTotal:      errorsTotal,
		PagesTotal:       pages,
		LinksDiscovered:  links,
		ProductsTotal:    products,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncRateLimited increments the rate-limit counter.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncPage counts a page by outcome (ok, failed, retried_ok).
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// AddLinks adds newly discovered product links.
func (m *Metrics) AddLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinksDiscovered.Add(float64(n))
}

// IncProduct counts a product by persistence outcome.
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}
