package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/events"
	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/aluiziolira/go-catalog-scraper/pipeline"
	"github.com/aluiziolira/go-catalog-scraper/scraper"
	"github.com/aluiziolira/go-catalog-scraper/storage"
	"github.com/spf13/cobra"
)

const defaultSitesFile = "configs/sites.yaml"

type siteOptions struct {
	slug      string
	sitesFile string
}

func addSiteFlags(cmd *cobra.Command, opts *siteOptions) {
	slugDefault, _ := config.EnvString("SCRAPER_SITE")
	cmd.Flags().StringVar(&opts.slug, "site", slugDefault, "Slug of the site to scrape")
	addSitesFileFlag(cmd, &opts.sitesFile)
}

func addSitesFileFlag(cmd *cobra.Command, dst *string) {
	sitesDefault := defaultSitesFile
	if value, ok := config.EnvString("SCRAPER_SITES"); ok {
		sitesDefault = value
	}
	cmd.Flags().StringVar(dst, "sites", sitesDefault, "Path to the YAML site definitions")
}

// load resolves the selected site. With a single configured site the slug
// may be omitted.
func (o siteOptions) load() (config.Site, error) {
	sites, err := config.LoadSites(o.sitesFile)
	if err != nil {
		return config.Site{}, err
	}
	if o.slug == "" {
		if len(sites) == 1 {
			return sites[0], nil
		}
		return config.Site{}, fmt.Errorf("--site is required when %s defines %d sites", o.sitesFile, len(sites))
	}
	return config.FindSite(sites, o.slug)
}

// addListingFlags registers the pagination and link collection flags.
func addListingFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.IntVar(&cfg.CategoryConcurrency, "category-concurrency", cfg.CategoryConcurrency, "Concurrent listing page fetches")
	flags.IntVar(&cfg.MaxPages, "max-pages", cfg.MaxPages, "Upper bound on listing pages per category")
	flags.IntVar(&cfg.MaxProducts, "max-products", cfg.MaxProducts, "Stop after this many product links (0 = no limit)")
	flags.StringVar(&cfg.DiagnosticsDir, "diagnostics-dir", cfg.DiagnosticsDir, "Directory for the first listing page snapshot (empty disables)")
}

// addDetailFlags registers the detail batch flags used by scrape.
func addDetailFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.IntVar(&cfg.PDPConcurrency, "pdp-concurrency", cfg.PDPConcurrency, "Concurrent product detail fetches")
	flags.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, fmt.Sprintf("Detail links per batch (minimum %d)", config.MinBatchSize))
	flags.DurationVar(&cfg.BatchSleep, "batch-sleep", cfg.BatchSleep, "Pause between detail batches")
}

func websiteFor(site config.Site) models.Website {
	return models.Website{Name: site.Name, Slug: site.Slug, BaseURL: site.BaseURL}
}

// backend is the persistence side of a run.
type backend struct {
	websites scraper.WebsiteResolver
	jobs     scraper.JobStore
	products pipeline.ProductStore
	validate func() error
	closers  []io.Closer
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type storeOptions struct {
	kind        string
	output      string
	databaseURL string
	mirror      string
}

func addStoreFlags(cmd *cobra.Command, opts *storeOptions) {
	kindDefault := "jsonl"
	if value, ok := config.EnvString("SCRAPER_STORE"); ok {
		kindDefault = value
	}
	outputDefault := "products.jsonl"
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	databaseDefault, _ := config.EnvString("DATABASE_URL")

	cmd.Flags().StringVar(&opts.kind, "store", kindDefault, "Product store: memory, jsonl, csv, or postgres")
	cmd.Flags().StringVar(&opts.output, "output", outputDefault, "Output file for the jsonl and csv stores")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", databaseDefault, "PostgreSQL connection string for the postgres store")
	cmd.Flags().StringVar(&opts.mirror, "mirror", "", "Also write products to this .jsonl or .csv file")
}

func openBackend(ctx context.Context, opts storeOptions, logger *slog.Logger) (*backend, error) {
	b := &backend{validate: func() error { return nil }}
	memory := storage.NewMemory()

	switch strings.ToLower(opts.kind) {
	case "memory":
		b.websites, b.jobs, b.products = memory, memory, memory
	case "jsonl":
		store, err := pipeline.NewJSONLStore(opts.output)
		if err != nil {
			return nil, err
		}
		b.websites, b.jobs, b.products = memory, memory, store
		b.validate = store.Validate
		b.closers = append(b.closers, store)
	case "csv":
		store, err := pipeline.NewCSVStore(opts.output)
		if err != nil {
			return nil, err
		}
		b.websites, b.jobs, b.products = memory, memory, store
		b.closers = append(b.closers, store)
	case "postgres":
		if opts.databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for the postgres store")
		}
		db, err := storage.NewPostgres(ctx, opts.databaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.websites, b.jobs, b.products = db, db, db
		b.closers = append(b.closers, db)
		logger.Info("postgres store ready")
	default:
		return nil, fmt.Errorf("unsupported store: %s", opts.kind)
	}

	if opts.mirror != "" {
		mirror, err := openFileStore(opts.mirror)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		// The tee closes the primary and the mirror.
		tee := pipeline.NewTeeStore(logger, b.products, mirror)
		b.products = tee
		b.closers = []io.Closer{tee}
	}
	return b, nil
}

type closingStore interface {
	pipeline.ProductStore
	io.Closer
}

func openFileStore(path string) (closingStore, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		store, err := pipeline.NewCSVStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := pipeline.NewJSONLStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

type eventOptions struct {
	redisAddr string
	stream    string
	maxLen    int64
}

func addEventFlags(cmd *cobra.Command, opts *eventOptions) {
	addrDefault, _ := config.EnvString("REDIS_ADDR")
	streamDefault := events.DefaultStream
	if value, ok := config.EnvString("SCRAPER_REDIS_STREAM"); ok {
		streamDefault = value
	}
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", addrDefault, "Publish progress events to this Redis server")
	cmd.Flags().StringVar(&opts.stream, "redis-stream", streamDefault, "Redis stream for progress events")
	cmd.Flags().Int64Var(&opts.maxLen, "redis-max-len", 10000, "Approximate stream length cap (0 = unbounded)")
}

// openSink returns a Redis publisher when an address is configured and a
// no-op sink otherwise.
func openSink(ctx context.Context, opts eventOptions, logger *slog.Logger) (events.Sink, func() error, error) {
	if opts.redisAddr == "" {
		return events.Noop{}, func() error { return nil }, nil
	}
	client, err := events.Dial(ctx, opts.redisAddr)
	if err != nil {
		return nil, nil, err
	}
	publisher := events.NewRedisPublisher(client, opts.stream, opts.maxLen, logger)
	return publisher, publisher.Close, nil
}
