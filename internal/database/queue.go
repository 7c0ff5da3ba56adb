package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldsync/internal/models"
)

// EnqueueUpdate inserts a pending update and its photos in one transaction.
// The id is assigned locally and never reused. A full disk surfaces as
// models.ErrStorageQuotaExceeded so the caller can tell the user instead of
// dropping the edit.
func (db *DB) EnqueueUpdate(ctx context.Context, update *models.PendingUpdate) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if update.Timestamp.IsZero() {
		update.Timestamp = now
	}
	update.SyncState = models.StatePending
	update.Synced = false

	result, err := tx.ExecContext(ctx,
		`INSERT INTO pending_updates (job_id, status, notes, timestamp, synced, sync_state, retry_count, last_error, created_at)
         VALUES (?, ?, ?, ?, 0, ?, 0, NULL, ?)`,
		update.JobID,
		update.Status,
		update.Notes,
		update.Timestamp,
		update.SyncState,
		now,
	)
	if err != nil {
		if quotaExceeded(err) {
			return fmt.Errorf("enqueue update for job %d: %w", update.JobID, models.ErrStorageQuotaExceeded)
		}
		return fmt.Errorf("failed to enqueue update: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i := range update.Photos {
		photo := &update.Photos[i]
		photo.UpdateID = id
		photo.Seq = i
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pending_photos (update_id, seq, filename, content_type, data) VALUES (?, ?, ?, ?, ?)`,
			photo.UpdateID, photo.Seq, photo.Filename, photo.ContentType, photo.Data,
		)
		if err != nil {
			if quotaExceeded(err) {
				return fmt.Errorf("enqueue photo for job %d: %w", update.JobID, models.ErrStorageQuotaExceeded)
			}
			return fmt.Errorf("failed to enqueue photo: %w", err)
		}
		if photoID, err := res.LastInsertId(); err == nil {
			photo.ID = photoID
		}
	}

	if err := tx.Commit(); err != nil {
		if quotaExceeded(err) {
			return fmt.Errorf("commit enqueue for job %d: %w", update.JobID, models.ErrStorageQuotaExceeded)
		}
		return fmt.Errorf("failed to commit enqueue: %w", err)
	}

	update.ID = id
	update.CreatedAt = now
	return nil
}

// ListUnsynced returns every entry still awaiting delivery (pending or retry),
// photos included, ordered by capture timestamp ascending.
func (db *DB) ListUnsynced(ctx context.Context) ([]models.PendingUpdate, error) {
	return db.listByStates(ctx, models.StatePending, models.StateRetry)
}

// ListStalled returns entries that exhausted their retry budget.
func (db *DB) ListStalled(ctx context.Context) ([]models.PendingUpdate, error) {
	return db.listByStates(ctx, models.StateStalled)
}

// ListFailed returns terminally rejected entries for manual resolution.
func (db *DB) ListFailed(ctx context.Context) ([]models.PendingUpdate, error) {
	return db.listByStates(ctx, models.StateFailed)
}

func (db *DB) listByStates(ctx context.Context, states ...string) ([]models.PendingUpdate, error) {
	placeholders := ""
	args := make([]interface{}, 0, len(states))
	for i, s := range states {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, s)
	}

	query := fmt.Sprintf(`SELECT id, job_id, status, notes, timestamp, synced, sync_state, retry_count, last_error, created_at, synced_at
        FROM pending_updates WHERE sync_state IN (%s) ORDER BY timestamp ASC, id ASC`, placeholders)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending updates: %w", err)
	}
	defer rows.Close()

	var updates []models.PendingUpdate
	for rows.Next() {
		var u models.PendingUpdate
		err := rows.Scan(
			&u.ID, &u.JobID, &u.Status, &u.Notes, &u.Timestamp, &u.Synced, &u.SyncState, &u.RetryCount, &u.LastError, &u.CreatedAt, &u.SyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range updates {
		photos, err := db.photosFor(ctx, updates[i].ID)
		if err != nil {
			return nil, err
		}
		updates[i].Photos = photos
	}
	return updates, nil
}

func (db *DB) photosFor(ctx context.Context, updateID int64) ([]models.PendingPhoto, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, update_id, seq, filename, content_type, data FROM pending_photos WHERE update_id = ? ORDER BY seq ASC`,
		updateID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	defer rows.Close()

	var photos []models.PendingPhoto
	for rows.Next() {
		var p models.PendingPhoto
		if err := rows.Scan(&p.ID, &p.UpdateID, &p.Seq, &p.Filename, &p.ContentType, &p.Data); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// MarkSynced flips the entry to synced in a single transaction-equivalent
// statement; this is the only place synced becomes true.
func (db *DB) MarkSynced(ctx context.Context, id int64) error {
	now := time.Now()
	_, err := db.ExecContext(ctx,
		`UPDATE pending_updates SET synced = 1, sync_state = ?, last_error = NULL, synced_at = ? WHERE id = ?`,
		models.StateSynced, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark update %d synced: %w", id, err)
	}
	return nil
}

// MarkRetry records a transient failure and bumps the retry counter.
func (db *DB) MarkRetry(ctx context.Context, id int64, errMsg string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE pending_updates SET sync_state = ?, last_error = ?, retry_count = retry_count + 1 WHERE id = ?`,
		models.StateRetry, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark update %d for retry: %w", id, err)
	}
	return nil
}

// MarkFailed moves the entry to its terminal rejected state.
func (db *DB) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return db.markState(ctx, id, models.StateFailed, errMsg)
}

// MarkStalled parks the entry after the retry ceiling; it stays in the queue
// for the next connectivity window.
func (db *DB) MarkStalled(ctx context.Context, id int64, errMsg string) error {
	return db.markState(ctx, id, models.StateStalled, errMsg)
}

func (db *DB) markState(ctx context.Context, id int64, state, errMsg string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE pending_updates SET sync_state = ?, last_error = ? WHERE id = ?`,
		state, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark update %d %s: %w", id, state, err)
	}
	return nil
}

// ResetStalled requeues stalled entries as retryable. Called on an
// offline-to-online transition so a fresh connectivity window gets a full
// retry budget.
func (db *DB) ResetStalled(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE pending_updates SET sync_state = ?, retry_count = 0 WHERE sync_state = ?`,
		models.StateRetry, models.StateStalled,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stalled updates: %w", err)
	}
	return result.RowsAffected()
}

// PruneSynced deletes acknowledged entries older than the retention window.
// Unsynced and stalled entries are never pruned.
func (db *DB) PruneSynced(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.ExecContext(ctx,
		`DELETE FROM pending_updates WHERE sync_state = ? AND synced_at IS NOT NULL AND synced_at < ?`,
		models.StateSynced, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune synced updates: %w", err)
	}
	return result.RowsAffected()
}

// CountByState returns queue sizes per sync state.
func (db *DB) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT sync_state, COUNT(*) FROM pending_updates GROUP BY sync_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count updates: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// GetUpdate returns a single queue entry by id.
func (db *DB) GetUpdate(ctx context.Context, id int64) (*models.PendingUpdate, error) {
	var u models.PendingUpdate
	err := db.QueryRowContext(ctx,
		`SELECT id, job_id, status, notes, timestamp, synced, sync_state, retry_count, last_error, created_at, synced_at
         FROM pending_updates WHERE id = ?`, id,
	).Scan(&u.ID, &u.JobID, &u.Status, &u.Notes, &u.Timestamp, &u.Synced, &u.SyncState, &u.RetryCount, &u.LastError, &u.CreatedAt, &u.SyncedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("update %d not found", id)
		}
		return nil, err
	}

	photos, err := db.photosFor(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Photos = photos
	return &u, nil
}
