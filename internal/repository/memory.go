package repository

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/models"
)

type memoryEntry struct {
	view      *models.JobView
	expiresAt time.Time
}

// MemoryViewCache is the in-process fallback when redis is unavailable.
type MemoryViewCache struct {
	views sync.Map
	ttl   time.Duration
}

func NewMemoryViewCache(ttl time.Duration) *MemoryViewCache {
	return &MemoryViewCache{ttl: ttl}
}

func (r *MemoryViewCache) GetView(ctx context.Context, jobID int64) (*models.JobView, error) {
	val, ok := r.views.Load(jobID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.ttl > 0 && time.Now().After(entry.expiresAt) {
		r.views.Delete(jobID)
		return nil, nil
	}
	return entry.view, nil
}

func (r *MemoryViewCache) SetView(ctx context.Context, view *models.JobView) error {
	r.views.Store(view.ID, &memoryEntry{view: view, expiresAt: time.Now().Add(r.ttl)})
	return nil
}

func (r *MemoryViewCache) Invalidate(ctx context.Context, jobID int64) error {
	r.views.Delete(jobID)
	return nil
}

func (r *MemoryViewCache) InvalidateAll(ctx context.Context) error {
	r.views.Range(func(key, _ interface{}) bool {
		r.views.Delete(key)
		return true
	})
	return nil
}
