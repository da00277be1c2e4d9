package dto

// RunBatchRequest triggers one scheduling invocation. Rank is optional; when
// absent the current-hour bucket is used. Limit of zero means the configured
// default.
type RunBatchRequest struct {
	Rank  *int `json:"rank"`
	Limit int  `json:"limit"`
}

// RunBatchResponse is the invocation summary. It is returned even when
// individual sources failed.
type RunBatchResponse struct {
	SourcesProcessed int   `json:"sources_processed"`
	SourcesFailed    int   `json:"sources_failed"`
	ItemsDiscovered  int   `json:"items_discovered"`
	ItemsExtracted   int   `json:"items_extracted"`
	ItemsPersisted   int   `json:"items_persisted"`
	ItemsRejected    int   `json:"items_rejected"`
	DurationMs       int64 `json:"duration_ms"`
}

// ReassignRanksResponse reports the rotation maintenance outcome
type ReassignRanksResponse struct {
	ActiveSources int `json:"active_sources"`
}

// JobDTO is the job-ledger read model
type JobDTO struct {
	JobID        string `json:"job_id"`
	SourceID     int64  `json:"source_id"`
	SourceName   string `json:"source_name"`
	Payload      string `json:"payload"`
	Status       string `json:"status"`
	Result       string `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// ListJobsRequest filters and paginates ledger reads
type ListJobsRequest struct {
	SourceID int64  `form:"source_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is one page of jobs
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}
