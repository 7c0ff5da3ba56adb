package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/domain"
	"fieldsync/internal/events"
	"fieldsync/internal/metrics"
	"fieldsync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNoJobID     = errors.New("job id is required")
	ErrEmptyUpdate = errors.New("update must change status, notes or attach a photo")
)

// JobService is the UI boundary of the sync core. Reads return the cached
// snapshot overlaid with the caller's own still-unsynced edits, so pending
// changes are visible immediately; writes always succeed locally and return
// without touching the network.
type JobService struct {
	store  domain.Store
	server domain.ServerReader
	views  domain.ViewCache
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func NewJobService(store domain.Store, server domain.ServerReader, views domain.ViewCache, bus domain.EventPublisher, logger *zerolog.Logger) *JobService {
	return &JobService{
		store:  store,
		server: server,
		views:  views,
		bus:    bus,
		logger: logger,
	}
}

// QueueUpdate records an offline edit. It never requires connectivity; the
// only fatal error is local storage running out of space, which is surfaced
// rather than silently dropping the edit.
func (s *JobService) QueueUpdate(ctx context.Context, jobID int64, status, notes *string, photos []models.PendingPhoto) (*models.PendingUpdate, error) {
	if jobID == 0 {
		return nil, ErrNoJobID
	}
	if status == nil && notes == nil && len(photos) == 0 {
		return nil, ErrEmptyUpdate
	}

	for i := range photos {
		if photos[i].Filename == "" {
			photos[i].Filename = uuid.NewString() + ".jpg"
		}
		if photos[i].ContentType == "" {
			photos[i].ContentType = "image/jpeg"
		}
	}

	update := &models.PendingUpdate{
		JobID:     jobID,
		Status:    status,
		Notes:     notes,
		Photos:    photos,
		Timestamp: time.Now(),
	}

	if err := s.store.EnqueueUpdate(ctx, update); err != nil {
		if errors.Is(err, models.ErrStorageQuotaExceeded) {
			s.logger.Error().Err(err).Int64("job_id", jobID).Msg("Local storage full, edit not saved")
		}
		return nil, err
	}

	metrics.IncQueued()
	if s.views != nil {
		if err := s.views.Invalidate(ctx, jobID); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", jobID).Msg("View cache invalidation failed")
		}
	}
	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventUpdateQueued, events.UpdateEventPayload{
			UpdateID: update.ID,
			JobID:    jobID,
			State:    models.StatePending,
		})
	}

	s.logger.Debug().Int64("update_id", update.ID).Int64("job_id", jobID).Msg("Update queued")
	return update, nil
}

// GetJob returns the merged view for one job, or nil when the job is neither
// cached nor touched by pending edits.
func (s *JobService) GetJob(ctx context.Context, jobID int64) (*models.JobView, error) {
	if s.views != nil {
		view, err := s.views.GetView(ctx, jobID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("job_id", jobID).Msg("View cache read failed")
		} else if view != nil {
			return view, nil
		}
	}

	cached, err := s.store.GetCachedJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	pending, err := s.pendingFor(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if cached == nil && len(pending) == 0 {
		return nil, nil
	}

	view := mergeView(cached, jobID, pending)

	if s.views != nil {
		if err := s.views.SetView(ctx, view); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", jobID).Msg("View cache write failed")
		}
	}
	return view, nil
}

// ListJobs returns merged views for every cached job.
func (s *JobService) ListJobs(ctx context.Context) ([]models.JobView, error) {
	cached, err := s.store.ListCachedJobs(ctx)
	if err != nil {
		return nil, err
	}

	unsynced, err := s.store.ListUnsynced(ctx)
	if err != nil {
		return nil, err
	}
	byJob := make(map[int64][]models.PendingUpdate)
	for _, u := range unsynced {
		byJob[u.JobID] = append(byJob[u.JobID], u)
	}

	views := make([]models.JobView, 0, len(cached))
	for i := range cached {
		job := cached[i]
		views = append(views, *mergeView(&job, job.ID, byJob[job.ID]))
	}
	return views, nil
}

// SearchJobs returns merged views for cached jobs whose number starts with
// the prefix.
func (s *JobService) SearchJobs(ctx context.Context, numberPrefix string) ([]models.JobView, error) {
	cached, err := s.store.ScanCachedJobsByNumberPrefix(ctx, numberPrefix)
	if err != nil {
		return nil, err
	}

	views := make([]models.JobView, 0, len(cached))
	for i := range cached {
		job := cached[i]
		pending, err := s.pendingFor(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, *mergeView(&job, job.ID, pending))
	}
	return views, nil
}

// RefreshJobs performs a read-through fetch of the canonical job list and
// overwrites the snapshots wholesale. Requires connectivity; callers treat
// failure as "keep serving the cache".
func (s *JobService) RefreshJobs(ctx context.Context) (int, error) {
	jobs, err := s.server.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	for i := range jobs {
		snapshot := models.SnapshotOf(&jobs[i], now)
		if err := s.store.UpsertCachedJob(ctx, &snapshot); err != nil {
			return 0, fmt.Errorf("refresh job %d: %w", jobs[i].ID, err)
		}
	}

	if s.views != nil {
		if err := s.views.InvalidateAll(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("View cache invalidation failed after refresh")
		}
	}
	s.logger.Info().Int("jobs", len(jobs)).Msg("Job cache refreshed from server")
	return len(jobs), nil
}

// HandleBulkClear reacts to the administrative server-side bulk-clear: every
// local snapshot and hot view is invalidated so post-clear reads come back
// empty instead of stale.
func (s *JobService) HandleBulkClear(ctx context.Context) error {
	if err := s.store.ClearCachedJobs(ctx); err != nil {
		return err
	}
	if s.views != nil {
		if err := s.views.InvalidateAll(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("View cache invalidation failed after bulk clear")
		}
	}
	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventCacheCleared, struct{}{})
	}
	s.logger.Info().Msg("Job cache cleared after administrative bulk-clear")
	return nil
}

// QueueStatus reports queue sizes per sync state for UI badges.
func (s *JobService) QueueStatus(ctx context.Context) (map[string]int, error) {
	return s.store.CountByState(ctx)
}

func (s *JobService) pendingFor(ctx context.Context, jobID int64) ([]models.PendingUpdate, error) {
	unsynced, err := s.store.ListUnsynced(ctx)
	if err != nil {
		return nil, err
	}
	var pending []models.PendingUpdate
	for _, u := range unsynced {
		if u.JobID == jobID {
			pending = append(pending, u)
		}
	}
	return pending, nil
}

// mergeView overlays pending edits on a snapshot. Entries arrive in timestamp
// order, so the last write wins, matching what the server will conclude once
// the queue drains.
func mergeView(cached *models.CachedJob, jobID int64, pending []models.PendingUpdate) *models.JobView {
	view := &models.JobView{}
	if cached != nil {
		view.CachedJob = *cached
	} else {
		view.ID = jobID
	}

	for i := range pending {
		u := pending[i]
		if u.Status != nil {
			view.Status = *u.Status
			view.PendingStatus = u.Status
		}
		if u.Notes != nil {
			view.PendingNotes = u.Notes
		}
	}
	view.PendingCount = len(pending)
	return view
}
