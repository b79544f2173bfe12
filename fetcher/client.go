// Package fetcher issues the HTTP GETs behind listing and detail scraping:
// single-page fetches with retry/backoff and concurrent batch fetches.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/metrics"
	"github.com/gocolly/colly/v2"
)

const (
	ctxKeyID    = "fetch_key"
	ctxKeyStart = "start"

	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// Client owns the shared colly collector. Each fetch works on a clone so
// callbacks never leak between calls while the transport is reused.
type Client struct {
	cfg       config.Config
	collector *colly.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger

	retries int64
}

// NewClient builds a client configured from cfg.
func NewClient(cfg config.Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
	})

	parallelism := cfg.MaxParallelism()
	if parallelism < 1 {
		parallelism = 1
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Client{
		cfg:       cfg,
		collector: collector,
		metrics:   m,
		logger:    logger.With("component", "fetcher"),
	}, nil
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.collector.WithTransport(rt)
	return c
}

// RetryCount returns the number of single-page retries scheduled so far.
func (c *Client) RetryCount() int {
	return int(atomic.LoadInt64(&c.retries))
}

// clone returns a callback-free copy of the shared collector with
// request timing instrumentation attached.
func (c *Client) clone(async bool) *colly.Collector {
	collector := c.collector.Clone()
	collector.Async = async
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true

	collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxKeyStart, time.Now())
		c.metrics.IncRequest("started")
	})
	collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
			c.metrics.ObserveDuration(time.Since(start))
		}
	})
	return collector
}

func (c *Client) request(collector *colly.Collector, key, rawURL string) error {
	reqCtx := colly.NewContext()
	reqCtx.Put(ctxKeyID, key)
	return collector.Request(http.MethodGet, rawURL, nil, reqCtx, c.headers())
}

// headers is the fixed browser-like header set sent with every request.
func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.cfg.UserAgent)
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Language", c.cfg.AcceptLanguage)
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
