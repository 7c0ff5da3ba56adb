package models

import "time"

// Job statuses as the server reports them.
const (
	JobStatusScheduled  = "scheduled"
	JobStatusInProgress = "in-progress"
	JobStatusComplete   = "complete"
	JobStatusCanceled   = "canceled"
)

// Job is the canonical server representation of a job as returned by the
// update and read endpoints.
type Job struct {
	ID           int64      `json:"id"`
	JobNumber    string     `json:"job_number"`
	Status       string     `json:"status"`
	Description  string     `json:"description"`
	Notes        string     `json:"notes"`
	CustomerName string     `json:"customer_name"`
	DueDate      *time.Time `json:"due_date"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CachedJob is a point-in-time snapshot of a job sufficient for offline
// display. Rows are only ever overwritten wholesale, so a row never mixes
// fields from two server states.
type CachedJob struct {
	ID           int64      `json:"id"`
	JobNumber    string     `json:"job_number"`
	Status       string     `json:"status"`
	Description  string     `json:"description"`
	CustomerName string     `json:"customer_name"`
	DueDate      *time.Time `json:"due_date"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// SnapshotOf builds a cache row from a server job.
func SnapshotOf(job *Job, fetchedAt time.Time) CachedJob {
	return CachedJob{
		ID:           job.ID,
		JobNumber:    job.JobNumber,
		Status:       job.Status,
		Description:  job.Description,
		CustomerName: job.CustomerName,
		DueDate:      job.DueDate,
		FetchedAt:    fetchedAt,
	}
}

// JobView is the merged read model exposed to the UI: the cached snapshot
// overlaid with the effects of any still-unsynced updates for the job.
type JobView struct {
	CachedJob
	PendingStatus *string `json:"pending_status,omitempty"`
	PendingNotes  *string `json:"pending_notes,omitempty"`
	PendingCount  int     `json:"pending_count"`
}
