package domain

import (
	"context"
	"time"

	"fieldsync/internal/models"
)

// Store is the local durable store as the service layer sees it.
type Store interface {
	EnqueueUpdate(ctx context.Context, update *models.PendingUpdate) error
	ListUnsynced(ctx context.Context) ([]models.PendingUpdate, error)
	ListStalled(ctx context.Context) ([]models.PendingUpdate, error)
	ListFailed(ctx context.Context) ([]models.PendingUpdate, error)
	PruneSynced(ctx context.Context, olderThan time.Duration) (int64, error)
	UpsertCachedJob(ctx context.Context, job *models.CachedJob) error
	GetCachedJob(ctx context.Context, id int64) (*models.CachedJob, error)
	ListCachedJobs(ctx context.Context) ([]models.CachedJob, error)
	ListCachedJobsByStatus(ctx context.Context, status string) ([]models.CachedJob, error)
	ScanCachedJobsByNumberPrefix(ctx context.Context, prefix string) ([]models.CachedJob, error)
	ClearCachedJobs(ctx context.Context) error
	CountByState(ctx context.Context) (map[string]int, error)
}

// ServerReader is the read side of the job API, used for cache population.
type ServerReader interface {
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
}

// ViewCache is a hot cache of merged job views in front of the local store.
// A nil view with nil error is a miss.
type ViewCache interface {
	GetView(ctx context.Context, jobID int64) (*models.JobView, error)
	SetView(ctx context.Context, view *models.JobView) error
	Invalidate(ctx context.Context, jobID int64) error
	InvalidateAll(ctx context.Context) error
}

// EventPublisher fans domain events out to UI surfaces.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
