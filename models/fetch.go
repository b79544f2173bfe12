package models

import "time"

// PaginationInfo is derived from the first listing page.
type PaginationInfo struct {
	ItemsPerPage int
	TotalItems   int
	TotalPages   int
}

// FetchResult is the outcome of one URL in a batch fetch.
// Either Success is true and Body is set, or Success is false and
// Error (and StatusCode for HTTP failures) describe the failure.
// StatusCode is 0 for transport failures.
type FetchResult struct {
	Success    bool
	Body       []byte
	StatusCode int
	Error      string
}

// RunSummary holds the overall result of an orchestrated run.
type RunSummary struct {
	Job            ScrapeJob
	Website        Website
	StartTime      time.Time
	EndTime        time.Time
	Pagination     PaginationInfo
	PagesFetched   int
	PagesFailed    int
	LinksFound     int
	LinksProcessed int
	DetailFailed   int
	Invalid        int
	Duplicates     int
	RetryCount     int
	FailedURLs     []string
}

// Duration is the wall time of the run.
func (r *RunSummary) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// ProgressEvent is published to the progress sink as a run advances.
type ProgressEvent struct {
	Kind      string    `json:"kind"`
	JobID     string    `json:"job_id"`
	WebsiteID string    `json:"website_id"`
	Batch     int       `json:"batch,omitempty"`
	Batches   int       `json:"batches,omitempty"`
	Found     int       `json:"found"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Progress event kinds.
const (
	EventJobStarted     = "job_started"
	EventPagesCollected = "pages_collected"
	EventBatchCompleted = "batch_completed"
	EventJobFinished    = "job_finished"
	EventJobFailed      = "job_failed"
)
