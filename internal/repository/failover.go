package repository

import (
	"context"
	"sync"
	"time"

	"fieldsync/internal/domain"
	"fieldsync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverViewCache fronts a primary view cache with an in-memory fallback.
// After a primary error it stays on the fallback and re-checks the primary
// once a minute.
type FailoverViewCache struct {
	primary  domain.ViewCache
	fallback domain.ViewCache
	logger   *zerolog.Logger

	mu        sync.Mutex
	down      bool
	lastCheck time.Time
}

func NewFailoverViewCache(primary, fallback domain.ViewCache, logger *zerolog.Logger) *FailoverViewCache {
	return &FailoverViewCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// tryPrimary reports whether the primary should be attempted: always while
// healthy, and once a minute while down so a recovered backend is noticed.
func (r *FailoverViewCache) tryPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.down {
		return true
	}
	if time.Since(r.lastCheck) > time.Minute {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverViewCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary view cache failed, falling back to memory")
	r.mu.Lock()
	r.down = true
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverViewCache) markUp() {
	r.mu.Lock()
	r.down = false
	r.mu.Unlock()
}

func (r *FailoverViewCache) primaryDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FailoverViewCache) GetView(ctx context.Context, jobID int64) (*models.JobView, error) {
	if r.tryPrimary() {
		view, err := r.primary.GetView(ctx, jobID)
		if err == nil {
			r.markUp()
			return view, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetView(ctx, jobID)
}

func (r *FailoverViewCache) SetView(ctx context.Context, view *models.JobView) error {
	if r.tryPrimary() {
		err := r.primary.SetView(ctx, view)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetView(ctx, view)
}

func (r *FailoverViewCache) Invalidate(ctx context.Context, jobID int64) error {
	// Invalidation must reach both layers or a stale view could outlive the
	// failover window.
	if r.tryPrimary() {
		if err := r.primary.Invalidate(ctx, jobID); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.Invalidate(ctx, jobID)
}

func (r *FailoverViewCache) InvalidateAll(ctx context.Context) error {
	if r.tryPrimary() {
		if err := r.primary.InvalidateAll(ctx); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.InvalidateAll(ctx)
}
