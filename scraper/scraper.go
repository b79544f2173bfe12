// Package scraper sequences a catalog run: listing pagination, link
// collection, batched detail fetches, persistence, and job bookkeeping.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/config"
	"github.com/aluiziolira/go-catalog-scraper/diagnostics"
	"github.com/aluiziolira/go-catalog-scraper/events"
	"github.com/aluiziolira/go-catalog-scraper/fetcher"
	"github.com/aluiziolira/go-catalog-scraper/metrics"
	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/aluiziolira/go-catalog-scraper/parser"
	"github.com/aluiziolira/go-catalog-scraper/pipeline"
	"github.com/aluiziolira/go-catalog-scraper/scheduler"
)

// ErrFirstPage wraps the failure to fetch the first listing page, the one
// condition that aborts a run before any work is done.
var ErrFirstPage = errors.New("first listing page fetch failed")

// WebsiteResolver returns or creates the website record for a run.
type WebsiteResolver interface {
	EnsureWebsite(ctx context.Context, site models.Website) (models.Website, error)
}

// JobStore creates and updates job records.
type JobStore interface {
	Create(ctx context.Context, websiteID string) (models.ScrapeJob, error)
	Update(ctx context.Context, jobID string, update models.JobUpdate) error
}

// Fetcher is the network side: single-page fetches with retry and
// concurrent batch fetches.
type Fetcher interface {
	scheduler.PageFetcher
	scheduler.BatchFetcher
}

// SiteAdapter is the site-specific extraction strategy.
type SiteAdapter interface {
	Links(body []byte, baseURL string) []string
	Pagination(body []byte) (models.PaginationInfo, bool)
	Normalize(body []byte, pageURL string) (*models.NormalizedProduct, error)
	PageParam() string
}

// Dependencies are the collaborators an Orchestrator drives. Events,
// Snapshots, Metrics, and Logger are optional.
type Dependencies struct {
	Fetcher   Fetcher
	Websites  WebsiteResolver
	Jobs      JobStore
	Products  pipeline.ProductStore
	Events    events.Sink
	Snapshots *diagnostics.Snapshotter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Orchestrator runs scrapes for one website.
type Orchestrator struct {
	cfg       config.Config
	website   models.Website
	adapter   SiteAdapter
	fetcher   Fetcher
	websites  WebsiteResolver
	jobs      JobStore
	products  pipeline.ProductStore
	events    events.Sink
	snapshots *diagnostics.Snapshotter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New validates cfg and wires an orchestrator for website.
func New(cfg config.Config, website models.Website, adapter SiteAdapter, deps Dependencies) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("site adapter is required")
	}
	if deps.Fetcher == nil || deps.Websites == nil || deps.Jobs == nil || deps.Products == nil {
		return nil, fmt.Errorf("fetcher, website resolver, job store, and product store are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := deps.Events
	if sink == nil {
		sink = events.Noop{}
	}
	snapshots := deps.Snapshots
	if snapshots == nil {
		snapshots = diagnostics.NewSnapshotter(cfg.DiagnosticsDir, logger)
	}

	return &Orchestrator{
		cfg:       cfg,
		website:   website,
		adapter:   adapter,
		fetcher:   deps.Fetcher,
		websites:  deps.Websites,
		jobs:      deps.Jobs,
		products:  deps.Products,
		events:    sink,
		snapshots: snapshots,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "orchestrator", "website", website.Slug),
		now:       time.Now,
	}, nil
}

// run is the per-invocation state, touched only by the orchestrating goroutine.
type run struct {
	job      models.ScrapeJob
	website  models.Website
	summary  *models.RunSummary
	pipeline *pipeline.Pipeline
	retries  int
}

// Run scrapes categoryURL end to end. The returned summary is never nil.
// A non-nil error means the job ended failed.
func (o *Orchestrator) Run(ctx context.Context, categoryURL string) (summary *models.RunSummary, err error) {
	summary = &models.RunSummary{StartTime: o.now()}
	defer func() { summary.EndTime = o.now() }()

	website, err := o.websites.EnsureWebsite(ctx, o.website)
	if err != nil {
		return summary, fmt.Errorf("ensure website: %w", err)
	}
	summary.Website = website

	job, err := o.jobs.Create(ctx, website.ID)
	if err != nil {
		return summary, fmt.Errorf("create job: %w", err)
	}
	summary.Job = job

	p, err := pipeline.NewPipeline(o.products, o.cfg.DedupeMaxSize, o.metrics, o.logger)
	if err != nil {
		return summary, o.fail(ctx, &run{job: job, website: website, summary: summary}, err)
	}
	defer p.Close()

	r := &run{job: job, website: website, summary: summary, pipeline: p}
	o.logger.Info("scrape job created", slog.String("job_id", job.ID), slog.String("url", categoryURL))

	defer func() {
		if rec := recover(); rec != nil {
			err = o.fail(ctx, r, fmt.Errorf("panic during run: %v", rec))
		}
	}()

	if err := o.execute(ctx, r, categoryURL); err != nil {
		return summary, o.fail(ctx, r, err)
	}
	o.complete(ctx, r)
	return summary, nil
}

// CollectLinks walks the listing pagination and returns the deduplicated,
// capped link list without opening a job.
func (o *Orchestrator) CollectLinks(ctx context.Context, categoryURL string) ([]string, error) {
	r := &run{summary: &models.RunSummary{StartTime: o.now()}}
	links, err := o.collect(ctx, r, categoryURL, nil)
	if err != nil {
		return nil, err
	}
	return o.truncate(links), nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, categoryURL string) error {
	links, err := o.collect(ctx, r, categoryURL, func() { o.markRunning(ctx, r) })
	if err != nil {
		return err
	}

	r.summary.LinksFound = len(links)
	r.job.TotalFound = len(links)
	o.updateJob(ctx, r, models.JobUpdate{TotalFound: &r.job.TotalFound})
	o.publish(ctx, r, models.EventPagesCollected, 0, 0, "")

	links = o.truncate(links)
	if len(links) < r.summary.LinksFound {
		o.logger.Info("link list capped",
			slog.Int("found", r.summary.LinksFound),
			slog.Int("max_products", o.cfg.MaxProducts),
		)
	}
	return o.processDetails(ctx, r, links)
}

// collect fetches page 1, resolves pagination, fetches the remaining pages,
// and returns the deduplicated links. onFirstPage runs after page 1 succeeds.
func (o *Orchestrator) collect(ctx context.Context, r *run, categoryURL string, onFirstPage func()) ([]string, error) {
	body, err := o.fetcher.Fetch(ctx, categoryURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFirstPage, err)
	}
	if onFirstPage != nil {
		onFirstPage()
	}
	if _, err := o.snapshots.Save(body); err != nil {
		o.logger.Warn("failed to save first page snapshot", slog.Any("error", err))
	}

	info, ok := o.adapter.Pagination(body)
	if !ok {
		o.logger.Info("pagination marker absent, assuming a single page", slog.String("url", categoryURL))
		info = models.PaginationInfo{TotalPages: 1}
	}
	if info.TotalPages > o.cfg.MaxPages {
		o.logger.Warn("pagination exceeds page limit, clamping",
			slog.Int("total_pages", info.TotalPages),
			slog.Int("max_pages", o.cfg.MaxPages),
		)
		info.TotalPages = o.cfg.MaxPages
	}

	r.summary.Pagination = info
	r.summary.PagesFetched = 1

	links := o.adapter.Links(body, o.linkBase(r))
	o.metrics.IncPage("ok")
	o.metrics.AddLinks(len(links))
	o.logger.Info("first listing page parsed",
		slog.Int("total_pages", info.TotalPages),
		slog.Int("total_items", info.TotalItems),
		slog.Int("links", len(links)),
	)

	if info.TotalPages > 1 {
		pages := make([]int, 0, info.TotalPages-1)
		for page := 2; page <= info.TotalPages; page++ {
			pages = append(pages, page)
		}
		sched := o.scheduler(r)
		result, err := sched.ProcessPages(ctx, pages, categoryURL, o.cfg.CategoryConcurrency)
		if result != nil {
			links = append(links, result.Links...)
			r.summary.PagesFetched += result.PagesFetched
			r.summary.PagesFailed += result.PagesFailed
			r.summary.FailedURLs = append(r.summary.FailedURLs, result.FailedURLs...)
			r.retries += result.Retried
		}
		if err != nil {
			return nil, err
		}
	}

	links = parser.DedupeLinks(links)
	o.logger.Info("listing pages collected",
		slog.Int("pages_fetched", r.summary.PagesFetched),
		slog.Int("pages_failed", r.summary.PagesFailed),
		slog.Int("links", len(links)),
	)
	return links, nil
}

func (o *Orchestrator) processDetails(ctx context.Context, r *run, links []string) error {
	batches := (len(links) + o.cfg.BatchSize - 1) / o.cfg.BatchSize
	sched := o.scheduler(r)

	for i := 0; i < batches; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := i * o.cfg.BatchSize
		end := start + o.cfg.BatchSize
		if end > len(links) {
			end = len(links)
		}

		retried, err := sched.FetchDetails(ctx, links[start:end], o.cfg.PDPConcurrency, func(pageURL string, res models.FetchResult) {
			o.handleDetail(ctx, r, pageURL, res)
		})
		r.retries += retried
		if err != nil {
			return err
		}

		stats := r.pipeline.Stats()
		r.job.TotalCreated = stats.Created
		r.job.TotalUpdated = stats.Updated
		o.updateJob(ctx, r, models.JobUpdate{TotalCreated: &r.job.TotalCreated, TotalUpdated: &r.job.TotalUpdated})
		o.publish(ctx, r, models.EventBatchCompleted, i+1, batches, "")

		o.logger.Info("detail batch processed",
			slog.Int("batch", i+1),
			slog.Int("batches", batches),
			slog.Int("size", end-start),
			slog.Int("created", stats.Created),
			slog.Int("updated", stats.Updated),
			slog.Int("failed", r.summary.DetailFailed),
		)

		if i < batches-1 {
			if err := fetcher.Sleep(ctx, o.cfg.BatchSleep); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) handleDetail(ctx context.Context, r *run, pageURL string, res models.FetchResult) {
	r.summary.LinksProcessed++
	if !res.Success {
		r.summary.DetailFailed++
		r.summary.FailedURLs = append(r.summary.FailedURLs, pageURL)
		o.logger.Warn("detail page failed",
			slog.String("url", pageURL),
			slog.Int("status", res.StatusCode),
			slog.String("error", res.Error),
		)
		return
	}

	product, err := o.adapter.Normalize(res.Body, pageURL)
	if err != nil {
		r.summary.DetailFailed++
		o.logger.Warn("failed to parse detail page", slog.String("url", pageURL), slog.Any("error", err))
		return
	}

	outcome, err := r.pipeline.Process(ctx, r.website.ID, product)
	if err != nil {
		// Already logged and counted by the pipeline; the batch goes on.
		o.logger.Debug("product not persisted", slog.String("url", pageURL), slog.Any("error", err))
	}
	switch outcome {
	case pipeline.OutcomeInvalid:
		r.summary.Invalid++
	case pipeline.OutcomeDuplicate:
		r.summary.Duplicates++
	case pipeline.OutcomeFailed:
		r.summary.DetailFailed++
		r.summary.FailedURLs = append(r.summary.FailedURLs, pageURL)
	}
}

func (o *Orchestrator) markRunning(ctx context.Context, r *run) {
	if r.job.ID == "" {
		return
	}
	status := models.JobRunning
	started := o.now()
	r.job.Status = status
	r.job.StartedAt = &started
	o.updateJob(ctx, r, models.JobUpdate{Status: &status, StartedAt: &started})
	o.publish(ctx, r, models.EventJobStarted, 0, 0, "")
	o.logger.Info("scrape job running", slog.String("job_id", r.job.ID))
}

func (o *Orchestrator) complete(ctx context.Context, r *run) {
	status := models.JobCompleted
	finished := o.now()
	r.job.Status = status
	r.job.FinishedAt = &finished
	o.updateJob(context.WithoutCancel(ctx), r, models.JobUpdate{
		Status:       &status,
		FinishedAt:   &finished,
		TotalFound:   &r.job.TotalFound,
		TotalCreated: &r.job.TotalCreated,
		TotalUpdated: &r.job.TotalUpdated,
	})
	o.finish(r)
	o.publish(context.WithoutCancel(ctx), r, models.EventJobFinished, 0, 0, "")
	o.logger.Info("scrape job completed",
		slog.String("job_id", r.job.ID),
		slog.Int("found", r.job.TotalFound),
		slog.Int("created", r.job.TotalCreated),
		slog.Int("updated", r.job.TotalUpdated),
		slog.Int("detail_failed", r.summary.DetailFailed),
	)
}

// fail marks the job failed with cause and returns cause.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	status := models.JobFailed
	finished := o.now()
	message := cause.Error()
	r.job.Status = status
	r.job.FinishedAt = &finished
	r.job.ErrorMessage = message

	ctx = context.WithoutCancel(ctx)
	o.updateJob(ctx, r, models.JobUpdate{
		Status:       &status,
		FinishedAt:   &finished,
		ErrorMessage: &message,
		TotalFound:   &r.job.TotalFound,
		TotalCreated: &r.job.TotalCreated,
		TotalUpdated: &r.job.TotalUpdated,
	})
	o.finish(r)
	o.publish(ctx, r, models.EventJobFailed, 0, 0, message)
	o.logger.Error("scrape job failed", slog.String("job_id", r.job.ID), slog.Any("error", cause))
	return cause
}

func (o *Orchestrator) finish(r *run) {
	if r.pipeline != nil {
		stats := r.pipeline.Stats()
		r.job.TotalCreated = stats.Created
		r.job.TotalUpdated = stats.Updated
	}
	r.summary.Job = r.job
	r.summary.RetryCount = r.retries
	if counter, ok := o.fetcher.(interface{ RetryCount() int }); ok {
		r.summary.RetryCount += counter.RetryCount()
	}
}

// updateJob logs job store errors; they never abort the run.
func (o *Orchestrator) updateJob(ctx context.Context, r *run, update models.JobUpdate) {
	if r.job.ID == "" {
		return
	}
	if err := o.jobs.Update(ctx, r.job.ID, update); err != nil {
		o.logger.Error("failed to update job", slog.String("job_id", r.job.ID), slog.Any("error", err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, r *run, kind string, batch, batches int, message string) {
	if r.job.ID == "" {
		return
	}
	event := models.ProgressEvent{
		Kind:      kind,
		JobID:     r.job.ID,
		WebsiteID: r.website.ID,
		Batch:     batch,
		Batches:   batches,
		Found:     r.job.TotalFound,
		Created:   r.job.TotalCreated,
		Updated:   r.job.TotalUpdated,
		Message:   message,
		At:        o.now().UTC(),
	}
	if err := o.events.Publish(ctx, event); err != nil {
		o.logger.Warn("failed to publish progress event", slog.String("kind", kind), slog.Any("error", err))
	}
}

func (o *Orchestrator) scheduler(r *run) *scheduler.Scheduler {
	return scheduler.New(o.cfg, o.fetcher, o.fetcher, o.adapter, scheduler.Options{
		PageParam: o.adapter.PageParam(),
		LinkBase:  o.linkBase(r),
		Metrics:   o.metrics,
		Logger:    o.logger,
	})
}

func (o *Orchestrator) linkBase(r *run) string {
	if r.website.BaseURL != "" {
		return r.website.BaseURL
	}
	return o.website.BaseURL
}

func (o *Orchestrator) truncate(links []string) []string {
	if o.cfg.MaxProducts > 0 && len(links) > o.cfg.MaxProducts {
		return links[:o.cfg.MaxProducts]
	}
	return links
}
