package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. A missing or empty variable is not an error.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays SCRAPER_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"SCRAPER_CATEGORY_CONCURRENCY", &cfg.CategoryConcurrency},
		{"SCRAPER_PDP_CONCURRENCY", &cfg.PDPConcurrency},
		{"SCRAPER_BATCH_SIZE", &cfg.BatchSize},
		{"SCRAPER_MAX_PRODUCTS", &cfg.MaxProducts},
		{"SCRAPER_MAX_PAGES", &cfg.MaxPages},
		{"SCRAPER_MAX_ATTEMPTS", &cfg.MaxAttempts},
		{"SCRAPER_DEDUPE_MAX_SIZE", &cfg.DedupeMaxSize},
	}
	for _, item := range ints {
		value, ok, err := EnvInt(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCRAPER_BATCH_SLEEP", &cfg.BatchSleep},
		{"SCRAPER_TIMEOUT", &cfg.Timeout},
		{"SCRAPER_CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"SCRAPER_RETRY_BACKOFF", &cfg.RetryBackoff},
		{"SCRAPER_CHUNK_DELAY", &cfg.ChunkDelay},
	}
	for _, item := range durations {
		value, ok, err := EnvDuration(item.key)
		if err != nil {
			return err
		}
		if ok {
			*item.dst = value
		}
	}

	if value, ok := EnvString("SCRAPER_USER_AGENT"); ok {
		cfg.UserAgent = value
	}
	if value, ok := EnvString("SCRAPER_DIAGNOSTICS_DIR"); ok {
		cfg.DiagnosticsDir = value
	}
	return nil
}
