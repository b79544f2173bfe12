package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero category concurrency",
			mutate: func(cfg *Config) {
				cfg.CategoryConcurrency = 0
			},
			wantErr: "category concurrency",
		},
		{
			name: "negative pdp concurrency",
			mutate: func(cfg *Config) {
				cfg.PDPConcurrency = -1
			},
			wantErr: "pdp concurrency",
		},
		{
			name: "batch size below minimum",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 9
			},
			wantErr: "batch size",
		},
		{
			name: "negative max products",
			mutate: func(cfg *Config) {
				cfg.MaxProducts = -5
			},
			wantErr: "max products",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "negative batch sleep",
			mutate: func(cfg *Config) {
				cfg.BatchSleep = -time.Millisecond
			},
			wantErr: "batch sleep",
		},
		{
			name: "zero attempts",
			mutate: func(cfg *Config) {
				cfg.MaxAttempts = 0
			},
			wantErr: "max attempts",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "empty user agent",
			mutate: func(cfg *Config) {
				cfg.UserAgent = ""
			},
			wantErr: "user agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.CategoryConcurrency != 5 || cfg.PDPConcurrency != 20 || cfg.BatchSize != 200 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BatchSleep != 200*time.Millisecond {
		t.Fatalf("batch sleep = %v, want 200ms", cfg.BatchSleep)
	}
}

func TestMaxParallelism(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CategoryConcurrency = 8
	cfg.PDPConcurrency = 3
	if got := cfg.MaxParallelism(); got != 8 {
		t.Fatalf("max parallelism = %d, want 8", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_PDP_CONCURRENCY", "7")
	t.Setenv("SCRAPER_BATCH_SLEEP", "1s")
	t.Setenv("SCRAPER_USER_AGENT", "  TestAgent/1.0  ")

	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.PDPConcurrency != 7 {
		t.Fatalf("pdp concurrency = %d, want 7", cfg.PDPConcurrency)
	}
	if cfg.BatchSleep != time.Second {
		t.Fatalf("batch sleep = %v, want 1s", cfg.BatchSleep)
	}
	if cfg.UserAgent != "TestAgent/1.0" {
		t.Fatalf("user agent = %q", cfg.UserAgent)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("SCRAPER_BATCH_SIZE", "lots")

	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err == nil || !strings.Contains(err.Error(), "SCRAPER_BATCH_SIZE") {
		t.Fatalf("expected SCRAPER_BATCH_SIZE error, got %v", err)
	}
}
