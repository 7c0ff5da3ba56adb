package worker

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/database"
	"fieldsync/internal/events"
	"fieldsync/internal/metrics"
	"fieldsync/internal/models"

	"github.com/rs/zerolog"
)

// ServerClient is the slice of the job API the engine needs.
type ServerClient interface {
	UpdateJob(ctx context.Context, req api.UpdateRequest) (*models.Job, error)
}

// Engine drains the pending-update queue against the server. One drain runs
// at a time; triggers arriving during a drain are coalesced into it.
type Engine struct {
	db          *database.DB
	client      ServerClient
	retryPolicy RetryPolicy
	schedule    *RetrySchedule
	bus         *events.EventBus
	clock       Clock
	logger      zerolog.Logger

	draining atomic.Bool
}

// NewEngine builds an engine with sane retry defaults.
func NewEngine(db *database.DB, client ServerClient, retry RetryPolicy, bus *events.EventBus, clock Clock, logger *zerolog.Logger) *Engine {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if clock == nil {
		clock = SystemClock()
	}

	return &Engine{
		db:          db,
		client:      client,
		retryPolicy: retry,
		schedule:    NewRetrySchedule(),
		bus:         bus,
		clock:       clock,
		logger:      logger.With().Str("component", "sync-engine").Logger(),
	}
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Synced   int
	Failed   int
	Deferred int
	Stalled  int
	// Coalesced is true when the trigger found a drain already in flight and
	// became a no-op.
	Coalesced bool
}

// Drain processes all currently due queue entries. Safe to call from any
// goroutine; overlapping calls coalesce into the in-flight drain.
func (e *Engine) Drain(ctx context.Context, reason string) (DrainResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		metrics.IncCoalesced()
		e.logger.Debug().Str("reason", reason).Msg("Drain already in progress, trigger coalesced")
		return DrainResult{Coalesced: true}, nil
	}
	defer e.draining.Store(false)

	start := time.Now()
	defer func() {
		metrics.ObserveDrain(time.Since(start).Seconds())
	}()

	e.logger.Info().Str("reason", reason).Msg("Drain started")

	updates, err := e.db.ListUnsynced(ctx)
	if err != nil {
		return DrainResult{}, err
	}
	if len(updates) == 0 {
		e.logger.Debug().Msg("Queue empty")
		return DrainResult{}, nil
	}

	var result DrainResult
	now := e.clock.Now()
	for _, group := range groupByJob(updates) {
		if !e.schedule.Due(group.jobID, now) {
			result.Deferred += len(group.entries)
			continue
		}
		e.drainGroup(ctx, group, &result)
		if ctx.Err() != nil {
			// Page teardown: stop driving the drain. In-flight bookkeeping
			// already committed entry by entry, so nothing is torn.
			return result, ctx.Err()
		}
	}

	e.logger.Info().
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("deferred", result.Deferred).
		Int("stalled", result.Stalled).
		Msg("Drain finished")
	return result, nil
}

// DrainOnReconnect is the offline-to-online edge trigger: stalled entries get
// a fresh retry budget and all deferrals are dropped before draining.
func (e *Engine) DrainOnReconnect(ctx context.Context) (DrainResult, error) {
	n, err := e.db.ResetStalled(ctx)
	if err != nil {
		return DrainResult{}, err
	}
	if n > 0 {
		e.logger.Info().Int64("count", n).Msg("Requeued stalled updates for new connectivity window")
	}
	e.schedule.Reset()
	return e.Drain(ctx, "reconnect")
}

// NextRetryAt exposes the earliest deferred retry for the monitor's timer.
func (e *Engine) NextRetryAt() (time.Time, bool) {
	return e.schedule.NextDue()
}

type jobGroup struct {
	jobID   int64
	entries []models.PendingUpdate
}

// groupByJob splits updates into per-job groups, each internally ordered by
// timestamp (the input already is), groups ordered by their oldest entry so
// drain order is deterministic.
func groupByJob(updates []models.PendingUpdate) []jobGroup {
	byJob := make(map[int64][]models.PendingUpdate)
	for _, u := range updates {
		byJob[u.JobID] = append(byJob[u.JobID], u)
	}

	groups := make([]jobGroup, 0, len(byJob))
	for jobID, entries := range byJob {
		groups = append(groups, jobGroup{jobID: jobID, entries: entries})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].entries[0], groups[j].entries[0]
		if a.Timestamp.Equal(b.Timestamp) {
			return groups[i].jobID < groups[j].jobID
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	return groups
}

// drainGroup submits one job's entries in timestamp order. A transient
// failure stops the remainder of the group so update N+1 is never applied
// before update N; a validation rejection is terminal for that entry only and
// the group keeps going.
func (e *Engine) drainGroup(ctx context.Context, group jobGroup, result *DrainResult) {
	for i := range group.entries {
		entry := &group.entries[i]

		job, err := e.client.UpdateJob(ctx, api.UpdateRequest{
			JobID:     entry.JobID,
			Status:    entry.Status,
			Notes:     entry.Notes,
			Photos:    entry.Photos,
			Timestamp: entry.Timestamp,
		})
		if err == nil {
			e.confirm(ctx, entry, job)
			result.Synced++
			continue
		}

		if errors.Is(err, models.ErrValidationRejected) {
			e.reject(ctx, entry, err)
			result.Failed++
			continue
		}

		// Transient: defer the rest of the group.
		deferred := len(group.entries) - i - 1
		result.Deferred += deferred
		if e.deferOrStall(ctx, entry, err) {
			result.Stalled++
		} else {
			result.Deferred++
		}
		return
	}

	e.schedule.Clear(group.jobID)
}

func (e *Engine) confirm(ctx context.Context, entry *models.PendingUpdate, job *models.Job) {
	if err := e.db.MarkSynced(ctx, entry.ID); err != nil {
		e.logger.Error().Err(err).Int64("update_id", entry.ID).Msg("Failed to mark update synced")
		return
	}

	// Full overwrite from the server's returned representation, never a
	// field-level patch.
	snapshot := models.SnapshotOf(job, e.clock.Now())
	if err := e.db.UpsertCachedJob(ctx, &snapshot); err != nil {
		e.logger.Error().Err(err).Int64("job_id", job.ID).Msg("Failed to refresh job snapshot after sync")
	}

	metrics.IncSynced()
	e.publish(events.EventUpdateSynced, entry, "")
	e.logger.Debug().Int64("update_id", entry.ID).Int64("job_id", entry.JobID).Msg("Update acknowledged")
}

func (e *Engine) reject(ctx context.Context, entry *models.PendingUpdate, cause error) {
	if err := e.db.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
		e.logger.Error().Err(err).Int64("update_id", entry.ID).Msg("Failed to mark update failed")
		return
	}
	metrics.IncFailed(models.StateFailed)
	e.publish(events.EventUpdateFailed, entry, cause.Error())
	e.logger.Warn().Err(cause).Int64("update_id", entry.ID).Int64("job_id", entry.JobID).Msg("Update rejected by server, needs manual resolution")
}

// deferOrStall handles a transient failure. Returns true when the entry hit
// the retry ceiling and was parked as stalled.
func (e *Engine) deferOrStall(ctx context.Context, entry *models.PendingUpdate, cause error) bool {
	attempt := entry.RetryCount + 1
	if attempt >= e.retryPolicy.MaxRetries {
		if err := e.db.MarkStalled(ctx, entry.ID, cause.Error()); err != nil {
			e.logger.Error().Err(err).Int64("update_id", entry.ID).Msg("Failed to mark update stalled")
			return false
		}
		e.schedule.Clear(entry.JobID)
		metrics.IncFailed(models.StateStalled)
		e.publish(events.EventUpdateStalled, entry, cause.Error())
		e.logger.Warn().Err(cause).Int64("update_id", entry.ID).Int64("job_id", entry.JobID).Msg("Update stalled after retry ceiling")
		return true
	}

	if err := e.db.MarkRetry(ctx, entry.ID, cause.Error()); err != nil {
		e.logger.Error().Err(err).Int64("update_id", entry.ID).Msg("Failed to mark update for retry")
		return false
	}

	delay := e.retryPolicy.NextDelay(attempt)
	retryAt := e.clock.Now().Add(delay)
	e.schedule.SetRetryAt(entry.JobID, retryAt)
	e.logger.Debug().
		Err(cause).
		Int64("update_id", entry.ID).
		Int64("job_id", entry.JobID).
		Dur("delay", delay).
		Msg("Transient failure, group deferred")
	return false
}

func (e *Engine) publish(eventType string, entry *models.PendingUpdate, errMsg string) {
	if e.bus == nil {
		return
	}
	state := models.StatePending
	switch eventType {
	case events.EventUpdateSynced:
		state = models.StateSynced
	case events.EventUpdateFailed:
		state = models.StateFailed
	case events.EventUpdateStalled:
		state = models.StateStalled
	}
	_ = e.bus.PublishJSON(eventType, events.UpdateEventPayload{
		UpdateID: entry.ID,
		JobID:    entry.JobID,
		State:    state,
		Error:    errMsg,
	})
}
