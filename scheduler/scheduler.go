// Package scheduler drives listing and detail fetches in fixed-size chunks,
// retrying transient failures within a chunk and pacing between chunks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/fetcher"
	"github.com/aluiziolira/go-catalog-scraper/metrics"
	"github.com/aluiziolira/go-catalog-scraper/models"
)

// PageFetcher fetches a single URL with its own retry policy.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BatchFetcher fetches a keyed set of URLs concurrently, one attempt each.
type BatchFetcher interface {
	FetchAll(ctx context.Context, urls map[string]string) map[string]models.FetchResult
}

// LinkSource pulls product links out of a listing body.
type LinkSource interface {
	Links(body []byte, baseURL string) []string
}

// IsRetryableStatus reports whether a batch failure with this HTTP status is
// worth one more sequential attempt.
func IsRetryableStatus(code int) bool {
	switch code {
	case 429, 502, 503, 504:
		return true
	}
	return code >= 520 && code <= 524
}

// Options configures a Scheduler.
type Options struct {
	// PageParam is the query parameter that carries the page number.
	PageParam string
	// LinkBase is the base URL relative product links are joined to.
	LinkBase string
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Scheduler runs chunked batch fetches.
type Scheduler struct {
	cfg       config.Config
	pages     PageFetcher
	batch     BatchFetcher
	links     LinkSource
	pageParam string
	linkBase  string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a scheduler. RetryDelay and ChunkDelay come from cfg.
func New(cfg config.Config, pages PageFetcher, batch BatchFetcher, links LinkSource, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageParam := opts.PageParam
	if pageParam == "" {
		pageParam = "page"
	}
	return &Scheduler{
		cfg:       cfg,
		pages:     pages,
		batch:     batch,
		links:     links,
		pageParam: pageParam,
		linkBase:  opts.LinkBase,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "scheduler"),
	}
}

// PageResult is the outcome of ProcessPages.
type PageResult struct {
	// Links in page order, then extraction order within a page. Not deduplicated.
	Links        []string
	PagesFetched int
	PagesFailed  int
	Retried      int
	FailedURLs   []string
}

type target struct {
	key string
	url string
}

// ProcessPages fetches the listing pages in chunks of concurrency and
// extracts their links. It only returns an error when ctx is cancelled;
// individual page failures are counted in the result.
func (s *Scheduler) ProcessPages(ctx context.Context, pageNumbers []int, baseURL string, concurrency int) (*PageResult, error) {
	result := &PageResult{}
	if len(pageNumbers) == 0 {
		return result, nil
	}

	targets := make([]target, 0, len(pageNumbers))
	for _, page := range pageNumbers {
		pageURL, err := PageURL(baseURL, s.pageParam, page)
		if err != nil {
			s.logger.Warn("skipping page with invalid url", slog.Int("page", page), slog.Any("error", err))
			result.PagesFailed++
			result.FailedURLs = append(result.FailedURLs, baseURL)
			s.metrics.IncPage("failed")
			continue
		}
		targets = append(targets, target{key: strconv.Itoa(page), url: pageURL})
	}

	chunks := chunk(targets, concurrency)
	for i, group := range chunks {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		results, retried := s.fetchChunk(ctx, group)
		result.Retried += retried

		found := 0
		for _, t := range group {
			res := results[t.key]
			delete(results, t.key)
			if !res.Success {
				result.PagesFailed++
				result.FailedURLs = append(result.FailedURLs, t.url)
				s.metrics.IncPage("failed")
				s.logger.Warn("listing page failed",
					slog.String("url", t.url),
					slog.Int("status", res.StatusCode),
					slog.String("error", res.Error),
				)
				continue
			}
			result.PagesFetched++
			s.metrics.IncPage("ok")
			links := s.links.Links(res.Body, s.linkBase)
			found += len(links)
			result.Links = append(result.Links, links...)
		}
		s.metrics.AddLinks(found)

		s.logger.Info("listing chunk processed",
			slog.Int("chunk", i+1),
			slog.Int("chunks", len(chunks)),
			slog.Int("pages", len(group)),
			slog.Int("links", found),
			slog.Int("total_links", len(result.Links)),
		)

		if i < len(chunks)-1 {
			if err := fetcher.Sleep(ctx, s.cfg.ChunkDelay); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// DetailHandler receives each detail fetch outcome in input order.
type DetailHandler func(url string, result models.FetchResult)

// FetchDetails fetches urls in chunks of concurrency, with the same
// batch-level retry as listing pages, and hands every result to handle.
// handle runs on the calling goroutine.
func (s *Scheduler) FetchDetails(ctx context.Context, urls []string, concurrency int, handle DetailHandler) (int, error) {
	targets := make([]target, len(urls))
	for i, u := range urls {
		targets[i] = target{key: strconv.Itoa(i), url: u}
	}

	retriedTotal := 0
	for _, group := range chunk(targets, concurrency) {
		if err := ctx.Err(); err != nil {
			return retriedTotal, err
		}
		results, retried := s.fetchChunk(ctx, group)
		retriedTotal += retried
		for _, t := range group {
			res := results[t.key]
			delete(results, t.key)
			if res.Success {
				s.metrics.IncPage("ok")
			} else {
				s.metrics.IncPage("failed")
			}
			handle(t.url, res)
		}
	}
	return retriedTotal, nil
}

// fetchChunk runs one batch and sequentially re-fetches retryable failures.
func (s *Scheduler) fetchChunk(ctx context.Context, group []target) (map[string]models.FetchResult, int) {
	urls := make(map[string]string, len(group))
	for _, t := range group {
		urls[t.key] = t.url
	}
	results := s.batch.FetchAll(ctx, urls)
	if results == nil {
		results = make(map[string]models.FetchResult, len(group))
	}

	retried := 0
	for _, t := range group {
		res, ok := results[t.key]
		if !ok {
			results[t.key] = models.FetchResult{Error: "no result returned"}
			continue
		}
		if res.Success || !IsRetryableStatus(res.StatusCode) {
			continue
		}
		if err := fetcher.Sleep(ctx, s.cfg.RetryDelay); err != nil {
			break
		}

		retried++
		s.logger.Info("retrying failed request",
			slog.String("url", t.url),
			slog.Int("status", res.StatusCode),
		)
		body, err := s.pages.Fetch(ctx, t.url)
		if err != nil {
			s.logger.Warn("retry failed",
				slog.String("url", t.url),
				slog.Any("error", err),
			)
			results[t.key] = models.FetchResult{
				StatusCode: fetcher.StatusCode(err),
				Error:      err.Error(),
			}
			continue
		}
		s.metrics.IncPage("retried_ok")
		results[t.key] = models.FetchResult{Success: true, Body: body, StatusCode: 200}
	}
	return results, retried
}

// PageURL sets param=page on baseURL, keeping its path and other query values.
func PageURL(baseURL, param string, page int) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("listing url %q is not absolute", baseURL)
	}
	query := parsed.Query()
	query.Set(param, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// chunk splits items into groups of size; the last group may be smaller.
func chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}

