package models

import "time"

// Sync states of a queued update. An entry is created as StatePending and
// ends as StateSynced, StateFailed (server rejected it, terminal) or
// StateStalled (retry ceiling reached, retained for the next connectivity
// window).
const (
	StatePending = "pending"
	StateRetry   = "retry"
	StateSynced  = "synced"
	StateFailed  = "failed"
	StateStalled = "stalled"
)

// PendingUpdate is one queued offline edit of a job. Entries are append-only:
// once created, only the sync bookkeeping fields change.
type PendingUpdate struct {
	ID         int64          `json:"id"`
	JobID      int64          `json:"job_id"`
	Status     *string        `json:"status,omitempty"`
	Notes      *string        `json:"notes,omitempty"`
	Photos     []PendingPhoto `json:"photos,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Synced     bool           `json:"synced"`
	SyncState  string         `json:"sync_state"`
	RetryCount int            `json:"retry_count"`
	LastError  *string        `json:"last_error"`
	CreatedAt  time.Time      `json:"created_at"`
	SyncedAt   *time.Time     `json:"synced_at"`
}

// Terminal reports whether the entry will never be submitted again.
func (u *PendingUpdate) Terminal() bool {
	return u.SyncState == StateSynced || u.SyncState == StateFailed
}

// PendingPhoto is a binary attachment captured while offline, ordered by Seq
// within its update.
type PendingPhoto struct {
	ID          int64  `json:"id"`
	UpdateID    int64  `json:"update_id"`
	Seq         int    `json:"seq"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
