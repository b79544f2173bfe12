package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/diagnostics"
	"github.com/aluiziolira/go-catalog-scraper/fetcher"
	"github.com/aluiziolira/go-catalog-scraper/metrics"
	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/aluiziolira/go-catalog-scraper/parser"
	"github.com/aluiziolira/go-catalog-scraper/scraper"
	"github.com/spf13/cobra"
)

type scrapeOptions struct {
	site        siteOptions
	store       storeOptions
	events      eventOptions
	metricsAddr string
}

func newScrapeCommand(base config.Config, global *globalOptions) *cobra.Command {
	cfg := base
	opts := &scrapeOptions{}

	cmd := &cobra.Command{
		Use:   "scrape [category-url]",
		Short: "Scrape a category and persist every product",
		Long: "Scrape walks every listing page of a category, fetches the product detail pages in " +
			"batches, and writes the normalized products to the selected store. Without a URL " +
			"the site's configured category URL is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, cfg, opts, global.logger, args)
		},
	}

	metricsDefault, _ := config.EnvString("SCRAPER_METRICS_ADDR")
	addSiteFlags(cmd, &opts.site)
	addListingFlags(cmd, &cfg)
	addDetailFlags(cmd, &cfg)
	addStoreFlags(cmd, &opts.store)
	addEventFlags(cmd, &opts.events)
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	return cmd
}

func runScrape(cmd *cobra.Command, cfg config.Config, opts *scrapeOptions, logger *slog.Logger, args []string) error {
	ctx := cmd.Context()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	site, err := opts.site.load()
	if err != nil {
		return err
	}
	adapter, err := parser.NewSiteAdapter(site, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	client, err := fetcher.NewClient(cfg, m, logger)
	if err != nil {
		return fmt.Errorf("initialising fetcher: %w", err)
	}

	stores, err := openBackend(ctx, opts.store, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("close store", slog.Any("error", err))
		}
	}()

	sink, closeSink, err := openSink(ctx, opts.events, logger)
	if err != nil {
		return fmt.Errorf("connecting event sink: %w", err)
	}
	defer func() {
		if err := closeSink(); err != nil {
			logger.Error("close event sink", slog.Any("error", err))
		}
	}()

	server := startMetricsServer(opts.metricsAddr, m, logger)
	defer stopMetricsServer(server, logger)

	orchestrator, err := scraper.New(cfg, websiteFor(site), adapter, scraper.Dependencies{
		Fetcher:   client,
		Websites:  stores.websites,
		Jobs:      stores.jobs,
		Products:  stores.products,
		Events:    sink,
		Snapshots: diagnostics.NewSnapshotter(cfg.DiagnosticsDir, logger),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	target := site.EntryURL()
	if len(args) > 0 {
		target = args[0]
	}
	logger.Info("starting scrape",
		slog.String("site", site.Slug),
		slog.String("url", target),
		slog.Int("category_concurrency", cfg.CategoryConcurrency),
		slog.Int("pdp_concurrency", cfg.PDPConcurrency),
		slog.Int("batch_size", cfg.BatchSize),
	)

	summary, runErr := orchestrator.Run(ctx, target)
	printSummary(cmd.OutOrStdout(), summary, describeStore(opts.store))
	if runErr != nil {
		return fmt.Errorf("scraping failed: %w", runErr)
	}
	if summary.Job.TotalCreated+summary.Job.TotalUpdated == 0 {
		return nil
	}
	if err := stores.validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}
	return nil
}

func describeStore(opts storeOptions) string {
	switch strings.ToLower(opts.kind) {
	case "jsonl", "csv":
		return opts.kind + " (" + opts.output + ")"
	default:
		return opts.kind
	}
}

func printSummary(w io.Writer, summary *models.RunSummary, store string) {
	if summary == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	status := summary.Job.Status
	if status == "" {
		status = models.JobFailed
	}
	fmt.Fprintf(w, "Scrape %s\n", status)

	fmt.Fprintf(w, "  Website:       %s\n", summary.Website.Slug)
	fmt.Fprintf(w, "  Job:           %s\n", summary.Job.ID)
	fmt.Fprintf(w, "  Pages:         %d fetched, %d failed of %d\n", summary.PagesFetched, summary.PagesFailed, summary.Pagination.TotalPages)
	fmt.Fprintf(w, "  Links found:   %d\n", summary.LinksFound)
	fmt.Fprintf(w, "  Created:       %d\n", summary.Job.TotalCreated)
	fmt.Fprintf(w, "  Updated:       %d\n", summary.Job.TotalUpdated)
	fmt.Fprintf(w, "  Detail errors: %d\n", summary.DetailFailed)
	if summary.Invalid > 0 || summary.Duplicates > 0 {
		fmt.Fprintf(w, "  Skipped:       %d invalid, %d duplicate\n", summary.Invalid, summary.Duplicates)
	}
	fmt.Fprintf(w, "  Retries:       %d\n", summary.RetryCount)
	fmt.Fprintf(w, "  Failed URLs:   %d\n", len(summary.FailedURLs))
	if summary.Job.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error:         %s\n", summary.Job.ErrorMessage)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", summary.Duration())
	fmt.Fprintf(w, "  Store:         %s\n", store)
	fmt.Fprintln(w, separator)
}
