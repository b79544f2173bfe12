// Package models defines data structures shared by the scraper components.
package models

import (
	"encoding/json"
	"time"
)

// Website is the persisted record of a scrape target.
type Website struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	BaseURL string `json:"base_url"`
}

// JobStatus is the lifecycle state of a ScrapeJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ScrapeJob tracks one scrape invocation.
type ScrapeJob struct {
	ID           string     `json:"id"`
	WebsiteID    string     `json:"website_id"`
	Status       JobStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	TotalFound   int        `json:"total_found"`
	TotalCreated int        `json:"total_created"`
	TotalUpdated int        `json:"total_updated"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// JobUpdate carries the fields to change on a job; nil fields are left alone.
type JobUpdate struct {
	Status       *JobStatus
	StartedAt    *time.Time
	FinishedAt   *time.Time
	TotalFound   *int
	TotalCreated *int
	TotalUpdated *int
	ErrorMessage *string
}

// Apply copies the set fields of u onto job.
func (u JobUpdate) Apply(job *ScrapeJob) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.StartedAt != nil {
		started := *u.StartedAt
		job.StartedAt = &started
	}
	if u.FinishedAt != nil {
		finished := *u.FinishedAt
		job.FinishedAt = &finished
	}
	if u.TotalFound != nil {
		job.TotalFound = *u.TotalFound
	}
	if u.TotalCreated != nil {
		job.TotalCreated = *u.TotalCreated
	}
	if u.TotalUpdated != nil {
		job.TotalUpdated = *u.TotalUpdated
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
}

// Media is an image or other asset referenced by a product.
type Media struct {
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Attribute is a name/value pair from a product attribute table.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NormalizedProduct is the site-agnostic record handed to persistence.
type NormalizedProduct struct {
	ExternalID    string            `json:"external_id"`
	Title         string            `json:"title"`
	Slug          string            `json:"slug"`
	Description   string            `json:"description"`
	Price         float64           `json:"price"`
	Currency      string            `json:"currency"`
	StockQuantity int               `json:"stock_quantity"`
	Status        string            `json:"status"`
	SourceURL     string            `json:"source_url"`
	Raw           map[string]string `json:"raw"`
	Media         []Media           `json:"media"`
	Attributes    []Attribute       `json:"attributes"`
	ScrapedAt     time.Time         `json:"scraped_at"`
}

// RawJSON encodes the raw payload for storage.
func (p *NormalizedProduct) RawJSON() (json.RawMessage, error) {
	if p.Raw == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(p.Raw)
}

// StoreResult is the persistence collaborator's answer for one product.
type StoreResult struct {
	EntityID   string
	WasCreated bool
}
