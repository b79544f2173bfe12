package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Postgres stores websites, jobs, and products in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// EnsureWebsite upserts the website by slug.
func (p *Postgres) EnsureWebsite(ctx context.Context, site models.Website) (models.Website, error) {
	if site.Slug == "" {
		return models.Website{}, fmt.Errorf("website slug is required")
	}
	const query = `
		INSERT INTO websites (id, name, slug, base_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, base_url = EXCLUDED.base_url, updated_at = NOW()
		RETURNING id::text`

	if err := p.pool.QueryRow(ctx, query, uuid.NewString(), site.Name, site.Slug, site.BaseURL).Scan(&site.ID); err != nil {
		return models.Website{}, fmt.Errorf("ensure website %s: %w", site.Slug, err)
	}
	return site, nil
}

// Create inserts a pending job.
func (p *Postgres) Create(ctx context.Context, websiteID string) (models.ScrapeJob, error) {
	job := models.ScrapeJob{
		ID:        uuid.NewString(),
		WebsiteID: websiteID,
		Status:    models.JobPending,
	}
	const query = `INSERT INTO scrape_jobs (id, website_id, status) VALUES ($1, $2, $3)`
	if _, err := p.pool.Exec(ctx, query, job.ID, websiteID, string(job.Status)); err != nil {
		return models.ScrapeJob{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Update writes only the fields set on update.
func (p *Postgres) Update(ctx context.Context, jobID string, update models.JobUpdate) error {
	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}
	const query = `
		UPDATE scrape_jobs SET
			status        = COALESCE($2::text, status),
			started_at    = COALESCE($3::timestamptz, started_at),
			finished_at   = COALESCE($4::timestamptz, finished_at),
			total_found   = COALESCE($5::int, total_found),
			total_created = COALESCE($6::int, total_created),
			total_updated = COALESCE($7::int, total_updated),
			error_message = COALESCE($8::text, error_message)
		WHERE id = $1`

	tag, err := p.pool.Exec(ctx, query, jobID,
		status,
		update.StartedAt,
		update.FinishedAt,
		update.TotalFound,
		update.TotalCreated,
		update.TotalUpdated,
		update.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// Job loads a job record.
func (p *Postgres) Job(ctx context.Context, jobID string) (models.ScrapeJob, error) {
	const query = `
		SELECT id::text, website_id::text, status, started_at, finished_at,
		       total_found, total_created, total_updated, COALESCE(error_message, '')
		FROM scrape_jobs WHERE id = $1`

	var (
		job    models.ScrapeJob
		status string
	)
	err := p.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.WebsiteID, &status, &job.StartedAt, &job.FinishedAt,
		&job.TotalFound, &job.TotalCreated, &job.TotalUpdated, &job.ErrorMessage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScrapeJob{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return models.ScrapeJob{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	job.Status = models.JobStatus(status)
	return job, nil
}

// StoreOrUpdate upserts by (website_id, external_id). A row whose xmax is 0
// was inserted by this statement rather than updated.
func (p *Postgres) StoreOrUpdate(ctx context.Context, websiteID string, product *models.NormalizedProduct) (models.StoreResult, error) {
	if product == nil || product.ExternalID == "" {
		return models.StoreResult{}, fmt.Errorf("product external id is required")
	}
	raw, err := product.RawJSON()
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("encode raw: %w", err)
	}
	media, err := json.Marshal(nonNilMedia(product.Media))
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("encode media: %w", err)
	}
	attributes, err := json.Marshal(nonNilAttributes(product.Attributes))
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("encode attributes: %w", err)
	}

	const query = `
		INSERT INTO products (
			id, website_id, external_id, title, slug, description, price, currency,
			stock_quantity, status, source_url, raw, media, attributes, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (website_id, external_id) DO UPDATE SET
			title          = EXCLUDED.title,
			slug           = EXCLUDED.slug,
			description    = EXCLUDED.description,
			price          = EXCLUDED.price,
			currency       = EXCLUDED.currency,
			stock_quantity = EXCLUDED.stock_quantity,
			status         = EXCLUDED.status,
			source_url     = EXCLUDED.source_url,
			raw            = EXCLUDED.raw,
			media          = EXCLUDED.media,
			attributes     = EXCLUDED.attributes,
			scraped_at     = EXCLUDED.scraped_at,
			updated_at     = NOW()
		RETURNING id::text, (xmax = 0)`

	scrapedAt := product.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	var result models.StoreResult
	err = p.pool.QueryRow(ctx, query,
		uuid.NewString(), websiteID, product.ExternalID, product.Title, product.Slug,
		product.Description, product.Price, product.Currency, product.StockQuantity,
		product.Status, product.SourceURL, string(raw), string(media), string(attributes), scrapedAt,
	).Scan(&result.EntityID, &result.WasCreated)
	if err != nil {
		return models.StoreResult{}, fmt.Errorf("upsert product %s: %w", product.ExternalID, err)
	}
	return result, nil
}

func nonNilMedia(media []models.Media) []models.Media {
	if media == nil {
		return []models.Media{}
	}
	return media
}

func nonNilAttributes(attrs []models.Attribute) []models.Attribute {
	if attrs == nil {
		return []models.Attribute{}
	}
	return attrs
}
