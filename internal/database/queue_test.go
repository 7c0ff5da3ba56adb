package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"fieldsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func strPtr(s string) *string { return &s }

func TestEnqueueAndListUnsynced(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	update := &models.PendingUpdate{
		JobID:  100,
		Status: strPtr("in-progress"),
		Notes:  strPtr("replaced valve"),
		Photos: []models.PendingPhoto{
			{Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8}},
			{Filename: "b.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD9}},
		},
	}

	err := db.EnqueueUpdate(ctx, update)
	require.NoError(t, err)
	assert.NotZero(t, update.ID)
	assert.Equal(t, models.StatePending, update.SyncState)
	assert.False(t, update.Timestamp.IsZero())

	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, int64(100), unsynced[0].JobID)
	assert.Equal(t, "in-progress", *unsynced[0].Status)
	require.Len(t, unsynced[0].Photos, 2)
	assert.Equal(t, "a.jpg", unsynced[0].Photos[0].Filename)
	assert.Equal(t, 0, unsynced[0].Photos[0].Seq)
	assert.Equal(t, 1, unsynced[0].Photos[1].Seq)
}

func TestListUnsyncedOrderedByTimestamp(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// Enqueue out of capture order.
	later := &models.PendingUpdate{JobID: 1, Status: strPtr("complete"), Timestamp: base.Add(10 * time.Minute)}
	earlier := &models.PendingUpdate{JobID: 1, Status: strPtr("in-progress"), Timestamp: base}
	require.NoError(t, db.EnqueueUpdate(ctx, later))
	require.NoError(t, db.EnqueueUpdate(ctx, earlier))

	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, earlier.ID, unsynced[0].ID)
	assert.Equal(t, later.ID, unsynced[1].ID)
}

func TestMarkSynced(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	update := &models.PendingUpdate{JobID: 5, Notes: strPtr("done")}
	require.NoError(t, db.EnqueueUpdate(ctx, update))

	require.NoError(t, db.MarkSynced(ctx, update.ID))

	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 0)

	got, err := db.GetUpdate(ctx, update.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.Equal(t, models.StateSynced, got.SyncState)
	assert.NotNil(t, got.SyncedAt)
	assert.Nil(t, got.LastError)
	assert.True(t, got.Terminal())
}

func TestMarkRetryIncrementsCount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	update := &models.PendingUpdate{JobID: 5, Notes: strPtr("x")}
	require.NoError(t, db.EnqueueUpdate(ctx, update))

	require.NoError(t, db.MarkRetry(ctx, update.ID, "connection refused"))
	require.NoError(t, db.MarkRetry(ctx, update.ID, "timeout"))

	got, err := db.GetUpdate(ctx, update.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRetry, got.SyncState)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "timeout", *got.LastError)
	assert.False(t, got.Synced)

	// Retry entries still show up in the drain set.
	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	update := &models.PendingUpdate{JobID: 5, Status: strPtr("bogus")}
	require.NoError(t, db.EnqueueUpdate(ctx, update))

	require.NoError(t, db.MarkFailed(ctx, update.ID, "validation rejected: unknown status"))

	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 0)

	failed, err := db.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "validation rejected: unknown status", *failed[0].LastError)
	assert.True(t, failed[0].Terminal())
}

func TestStallAndResetStalled(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	update := &models.PendingUpdate{JobID: 7, Notes: strPtr("x")}
	require.NoError(t, db.EnqueueUpdate(ctx, update))

	for i := 0; i < 5; i++ {
		require.NoError(t, db.MarkRetry(ctx, update.ID, "timeout"))
	}
	require.NoError(t, db.MarkStalled(ctx, update.ID, "retry budget exhausted"))

	// Stalled entries are excluded from the drain set but not lost.
	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 0)

	stalled, err := db.ListStalled(ctx)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, 5, stalled[0].RetryCount)

	n, err := db.ResetStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetUpdate(ctx, update.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateRetry, got.SyncState)
	assert.Equal(t, 0, got.RetryCount)
}

func TestPruneSyncedKeepsUnsynced(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	old := &models.PendingUpdate{JobID: 1, Notes: strPtr("old")}
	pending := &models.PendingUpdate{JobID: 2, Notes: strPtr("pending")}
	require.NoError(t, db.EnqueueUpdate(ctx, old))
	require.NoError(t, db.EnqueueUpdate(ctx, pending))
	require.NoError(t, db.MarkSynced(ctx, old.ID))

	// Backdate the acknowledgment past the retention window.
	_, err := db.ExecContext(ctx,
		`UPDATE pending_updates SET synced_at = ? WHERE id = ?`,
		time.Now().Add(-100*time.Hour), old.ID,
	)
	require.NoError(t, err)

	n, err := db.PruneSynced(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetUpdate(ctx, old.ID)
	assert.Error(t, err)

	got, err := db.GetUpdate(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, got.SyncState)
}

func TestCountByState(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, db.EnqueueUpdate(ctx, &models.PendingUpdate{JobID: int64(i), Notes: strPtr("n")}))
	}
	failed := &models.PendingUpdate{JobID: 9, Notes: strPtr("n")}
	require.NoError(t, db.EnqueueUpdate(ctx, failed))
	require.NoError(t, db.MarkFailed(ctx, failed.ID, "rejected"))

	counts, err := db.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatePending])
	assert.Equal(t, 1, counts[models.StateFailed])
}

func TestGetUpdateNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetUpdate(context.Background(), 9999)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrStorageQuotaExceeded))
}
