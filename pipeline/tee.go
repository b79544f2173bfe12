package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/aluiziolira/go-catalog-scraper/models"
)

// TeeStore stores into a primary store and mirrors every product to
// additional stores (for example a database plus a JSONL export). Only the
// primary store decides the outcome: a mirror failure is logged and counted,
// never returned, because the product already exists in the primary.
type TeeStore struct {
	primary  ProductStore
	mirrors  []ProductStore
	logger   *slog.Logger
	failures atomic.Int64
}

// NewTeeStore combines stores; mirrors may be empty.
func NewTeeStore(logger *slog.Logger, primary ProductStore, mirrors ...ProductStore) *TeeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeeStore{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With("component", "tee_store"),
	}
}

// StoreOrUpdate implements ProductStore.
func (ts *TeeStore) StoreOrUpdate(ctx context.Context, websiteID string, product *models.NormalizedProduct) (models.StoreResult, error) {
	result, err := ts.primary.StoreOrUpdate(ctx, websiteID, product)
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("primary store: %w", err)
	}
	for i, mirror := range ts.mirrors {
		if _, err := mirror.StoreOrUpdate(ctx, websiteID, product); err != nil {
			ts.failures.Add(1)
			ts.logger.Error("mirror store failed",
				slog.Int("mirror", i),
				slog.String("external_id", product.ExternalID),
				slog.Any("error", err),
			)
		}
	}
	return result, nil
}

// MirrorFailures is the number of mirror writes that failed.
func (ts *TeeStore) MirrorFailures() int64 {
	return ts.failures.Load()
}

// Close closes every store that implements io.Closer.
func (ts *TeeStore) Close() error {
	var errs []error
	for _, store := range append([]ProductStore{ts.primary}, ts.mirrors...) {
		if closer, ok := store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
