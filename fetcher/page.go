package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
)

// Fetch retrieves one page, retrying transient failures with exponential
// backoff. It never panics on failure: callers get a nil body and an error
// describing the last attempt, and decide whether that is fatal.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err := c.attempt(ctx, rawURL)
		if err == nil {
			c.logger.Debug("fetch succeeded",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
			)
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		label := ErrorLabel(err)
		c.metrics.IncError(label)
		if !c.retryable(err) {
			c.logger.Error("fetch failed, not retryable",
				slog.String("url", rawURL),
				slog.String("category", label),
				slog.Any("error", err),
			)
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.Backoff(attempt, err)
		var rateLimited ErrRateLimited
		if errors.As(err, &rateLimited) {
			c.metrics.IncRateLimited()
			c.logger.Warn("rate limited, backing off",
				slog.String("url", rawURL),
				slog.Int("status", StatusCode(err)),
				slog.Int("attempt", attempt),
				slog.Duration("wait", delay),
			)
		} else {
			c.logger.Warn("fetch attempt failed, retrying",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.String("category", label),
				slog.Duration("wait", delay),
				slog.Any("error", err),
			)
		}
		atomic.AddInt64(&c.retries, 1)
		c.metrics.IncRetries()
		if err := Sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	c.logger.Error("fetch failed after retries",
		slog.String("url", rawURL),
		slog.Int("max_attempts", c.cfg.MaxAttempts),
		slog.Any("error", lastErr),
	)
	return nil, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

// Backoff is the wait before the attempt following attempt: 2^attempt units,
// plus the rate-limit pad when err is a 429/503.
func (c *Client) Backoff(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.cfg.RetryBackoff * time.Duration(int64(1)<<attempt)
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		delay += c.cfg.RateLimitBackoff
	}
	return delay
}

// retryable: any non-2xx status, or a transport error whose text looks transient.
func (c *Client) retryable(err error) bool {
	if StatusCode(err) != 0 {
		return true
	}
	return IsRetryableTransport(err)
}

// attempt performs one GET and returns a typed error for any non-2xx outcome.
func (c *Client) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := c.clone(false)

	var (
		body      []byte
		status    int
		transport error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		transport = err
	})

	if err := c.request(collector, rawURL, rawURL); err != nil && transport == nil {
		transport = err
	}

	if transport != nil {
		return nil, classifyError(transport, 0)
	}
	if status == 0 {
		return nil, ErrConnection{Err: errNoResponse}
	}
	if !isSuccess(status) {
		return nil, classifyError(nil, status)
	}
	return body, nil
}
