package config

import (
	"fmt"
	"time"
)

// MinBatchSize is the smallest accepted detail batch size.
const MinBatchSize = 10

// Config holds the fetch and run parameters for one scrape invocation.
// It is validated once at the boundary and passed by value afterwards.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	ConnectTimeout time.Duration
	Timeout        time.Duration
	MaxBodyBytes   int

	// MaxAttempts is the total number of attempts a single-page fetch makes.
	MaxAttempts int
	// RetryBackoff is the unit multiplied by 2^attempt between attempts.
	RetryBackoff time.Duration
	// RateLimitBackoff is added to the backoff after a 429 or 503.
	RateLimitBackoff time.Duration

	// RetryDelay separates sequential re-fetches of transient batch failures.
	RetryDelay time.Duration
	// ChunkDelay paces consecutive listing chunks.
	ChunkDelay time.Duration

	// MaxPages bounds how many listing pages one category may expand to,
	// whatever the pagination marker claims.
	MaxPages int

	CategoryConcurrency int
	PDPConcurrency      int
	BatchSize           int
	MaxProducts         int
	BatchSleep          time.Duration

	DedupeMaxSize  int
	DiagnosticsDir string
}

// DefaultConfig returns the reference defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage:      "en-US,en;q=0.9",
		ConnectTimeout:      30 * time.Second,
		Timeout:             60 * time.Second,
		MaxBodyBytes:        10 * 1024 * 1024,
		MaxAttempts:         3,
		RetryBackoff:        time.Second,
		RateLimitBackoff:    5 * time.Second,
		RetryDelay:          500 * time.Millisecond,
		ChunkDelay:          500 * time.Millisecond,
		MaxPages:            10000,
		CategoryConcurrency: 5,
		PDPConcurrency:      20,
		BatchSize:           200,
		MaxProducts:         0,
		BatchSleep:          200 * time.Millisecond,
		DedupeMaxSize:       100000,
		DiagnosticsDir:      "storage/diagnostics",
	}
}

// Validate ensures all configuration values are coherent.
func (c Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes cannot be negative")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RateLimitBackoff < 0 {
		return fmt.Errorf("rate limit backoff cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.ChunkDelay < 0 {
		return fmt.Errorf("chunk delay cannot be negative")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1")
	}
	if c.CategoryConcurrency < 1 {
		return fmt.Errorf("category concurrency must be at least 1")
	}
	if c.PDPConcurrency < 1 {
		return fmt.Errorf("pdp concurrency must be at least 1")
	}
	if c.BatchSize < MinBatchSize {
		return fmt.Errorf("batch size must be at least %d", MinBatchSize)
	}
	if c.MaxProducts < 0 {
		return fmt.Errorf("max products cannot be negative")
	}
	if c.BatchSleep < 0 {
		return fmt.Errorf("batch sleep cannot be negative")
	}
	if c.DedupeMaxSize < 1 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	return nil
}

// MaxParallelism is the widest fan-out any stage may request.
func (c Config) MaxParallelism() int {
	if c.PDPConcurrency > c.CategoryConcurrency {
		return c.PDPConcurrency
	}
	return c.CategoryConcurrency
}
