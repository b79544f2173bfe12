// Package pipeline hands normalized products to persistence: validation,
// per-run de-duplication by external id, storage, and outcome counters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-catalog-scraper/metrics"
	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/aluiziolira/go-catalog-scraper/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrPipelineClosed is returned when Process is called after Close.
var ErrPipelineClosed = errors.New("pipeline: closed")

// ProductStore persists products idempotently by (websiteID, external id).
type ProductStore interface {
	StoreOrUpdate(ctx context.Context, websiteID string, product *models.NormalizedProduct) (models.StoreResult, error)
}

// Outcome is what happened to one product.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Processed  int
	Created    int
	Updated    int
	Invalid    int
	Duplicates int
	Failed     int
}

// Pipeline is called from the orchestrating goroutine after each detail
// batch; it is safe for concurrent use but does not start workers.
type Pipeline struct {
	store   ProductStore
	seen    *lru.Cache[string, struct{}]
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	stats  Stats
	closed bool
}

// NewPipeline builds a pipeline remembering up to dedupeSize external ids.
func NewPipeline(store ProductStore, dedupeSize int, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if dedupeSize <= 0 {
		dedupeSize = 1
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:   store,
		seen:    seen,
		metrics: m,
		logger:  logger.With("component", "pipeline"),
	}, nil
}

// Process validates, de-duplicates, and stores one product.
func (p *Pipeline) Process(ctx context.Context, websiteID string, product *models.NormalizedProduct) (Outcome, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return OutcomeFailed, ErrPipelineClosed
	}

	if err := parser.ValidateProduct(product); err != nil {
		p.record(OutcomeInvalid)
		p.logger.Warn("invalid product", slog.Any("error", err))
		return OutcomeInvalid, nil
	}

	key := websiteID + "\x00" + product.ExternalID
	if found, _ := p.seen.ContainsOrAdd(key, struct{}{}); found {
		p.record(OutcomeDuplicate)
		p.logger.Debug("duplicate product skipped",
			slog.String("external_id", product.ExternalID),
			slog.String("url", product.SourceURL),
		)
		return OutcomeDuplicate, nil
	}

	result, err := p.store.StoreOrUpdate(ctx, websiteID, product)
	if err != nil {
		// Let a later occurrence of the same id try again.
		p.seen.Remove(key)
		p.record(OutcomeFailed)
		p.logger.Error("store product failed",
			slog.String("external_id", product.ExternalID),
			slog.String("url", product.SourceURL),
			slog.Any("error", err),
		)
		return OutcomeFailed, fmt.Errorf("store %s: %w", product.ExternalID, err)
	}

	outcome := OutcomeUpdated
	if result.WasCreated {
		outcome = OutcomeCreated
	}
	p.record(outcome)
	return outcome, nil
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close prevents further submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Pipeline) record(outcome Outcome) {
	p.mu.Lock()
	p.stats.Processed++
	switch outcome {
	case OutcomeCreated:
		p.stats.Created++
	case OutcomeUpdated:
		p.stats.Updated++
	case OutcomeInvalid:
		p.stats.Invalid++
	case OutcomeDuplicate:
		p.stats.Duplicates++
	case OutcomeFailed:
		p.stats.Failed++
	}
	p.mu.Unlock()
	p.metrics.IncProduct(string(outcome))
}
