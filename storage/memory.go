// Package storage implements the website, job, and product collaborators
// the orchestrator persists through.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-catalog-scraper/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("storage: not found")

// Memory keeps websites, jobs, and products in process memory. It is safe
// for concurrent use.
type Memory struct {
	mu       sync.Mutex
	websites map[string]models.Website
	jobs     map[string]models.ScrapeJob
	products map[string]storedProduct
}

type storedProduct struct {
	id        string
	websiteID string
	product   models.NormalizedProduct
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		websites: make(map[string]models.Website),
		jobs:     make(map[string]models.ScrapeJob),
		products: make(map[string]storedProduct),
	}
}

// EnsureWebsite returns the website with site.Slug, creating it if needed.
func (m *Memory) EnsureWebsite(_ context.Context, site models.Website) (models.Website, error) {
	if site.Slug == "" {
		return models.Website{}, fmt.Errorf("website slug is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.websites[site.Slug]; ok {
		existing.Name = site.Name
		existing.BaseURL = site.BaseURL
		m.websites[site.Slug] = existing
		return existing, nil
	}
	site.ID = uuid.NewString()
	m.websites[site.Slug] = site
	return site, nil
}

// Create opens a pending job for websiteID.
func (m *Memory) Create(_ context.Context, websiteID string) (models.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := models.ScrapeJob{
		ID:        uuid.NewString(),
		WebsiteID: websiteID,
		Status:    models.JobPending,
	}
	m.jobs[job.ID] = job
	return job, nil
}

// Update applies the set fields of update to the job.
func (m *Memory) Update(_ context.Context, jobID string, update models.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	update.Apply(&job)
	m.jobs[jobID] = job
	return nil
}

// Job returns a copy of the job record.
func (m *Memory) Job(jobID string) (models.ScrapeJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	return job, ok
}

// StoreOrUpdate upserts by (websiteID, external id).
func (m *Memory) StoreOrUpdate(_ context.Context, websiteID string, product *models.NormalizedProduct) (models.StoreResult, error) {
	if product == nil || product.ExternalID == "" {
		return models.StoreResult{}, fmt.Errorf("product external id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := websiteID + "\x00" + product.ExternalID
	if existing, ok := m.products[key]; ok {
		existing.product = *product
		m.products[key] = existing
		return models.StoreResult{EntityID: existing.id}, nil
	}
	id := uuid.NewString()
	m.products[key] = storedProduct{id: id, websiteID: websiteID, product: *product}
	return models.StoreResult{EntityID: id, WasCreated: true}, nil
}

// ProductCount is the number of distinct products stored for websiteID.
func (m *Memory) ProductCount(websiteID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, stored := range m.products {
		if stored.websiteID == websiteID {
			count++
		}
	}
	return count
}
