package fetcher

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/gocolly/colly/v2"
)

// FetchAll fetches every URL concurrently, one attempt each, and returns a
// result for every key in urls. Callers chunk the input to the concurrency
// they want; retries happen at the batch level, not here.
func (c *Client) FetchAll(ctx context.Context, urls map[string]string) map[string]models.FetchResult {
	results := make(map[string]models.FetchResult, len(urls))
	if len(urls) == 0 {
		return results
	}
	if err := ctx.Err(); err != nil {
		for key := range urls {
			results[key] = models.FetchResult{Error: err.Error()}
		}
		return results
	}

	var mu sync.Mutex
	record := func(key string, result models.FetchResult) {
		mu.Lock()
		defer mu.Unlock()
		if _, done := results[key]; done {
			return
		}
		results[key] = result
	}

	collector := c.clone(true)
	collector.OnResponse(func(r *colly.Response) {
		key := r.Ctx.Get(ctxKeyID)
		if isSuccess(r.StatusCode) {
			record(key, models.FetchResult{
				Success:    true,
				Body:       r.Body,
				StatusCode: r.StatusCode,
			})
			return
		}
		err := classifyError(nil, r.StatusCode)
		c.metrics.IncError(ErrorLabel(err))
		record(key, models.FetchResult{
			StatusCode: r.StatusCode,
			Error:      StatusError{StatusCode: r.StatusCode}.Error(),
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		key := ""
		if r != nil && r.Ctx != nil {
			key = r.Ctx.Get(ctxKeyID)
		}
		classified := classifyError(err, 0)
		c.metrics.IncError(ErrorLabel(classified))
		c.logger.Debug("batch request error",
			slog.String("key", key),
			slog.Any("error", err),
		)
		record(key, models.FetchResult{Error: classified.Error()})
	})

	keys := make([]string, 0, len(urls))
	for key := range urls {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := c.request(collector, key, urls[key]); err != nil {
			record(key, models.FetchResult{Error: err.Error()})
		}
	}
	collector.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, key := range keys {
		if _, ok := results[key]; !ok {
			results[key] = models.FetchResult{Error: errNoResponse.Error()}
		}
	}
	return results
}
