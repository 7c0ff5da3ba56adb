package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Janitor prunes acknowledged queue entries past their retention window on a
// timer. Synced entries are kept transiently for audit, then dropped; nothing
// unsynced is ever touched.
type Janitor struct {
	db        *DB
	retention time.Duration
	interval  time.Duration
	logger    *zerolog.Logger
}

func NewJanitor(db *DB, retention, interval time.Duration, logger *zerolog.Logger) *Janitor {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{db: db, retention: retention, interval: interval, logger: logger}
}

// Start runs the prune loop until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info().Dur("retention", j.retention).Dur("interval", j.interval).Msg("Queue janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.db.PruneSynced(ctx, j.retention)
			if err != nil {
				j.logger.Error().Err(err).Msg("Prune failed")
				continue
			}
			if n > 0 {
				j.logger.Info().Int64("pruned", n).Msg("Pruned synced updates")
			}
		}
	}
}
