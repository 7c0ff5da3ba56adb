package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fieldsync/internal/database"
	"fieldsync/internal/events"
	"fieldsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func strPtr(s string) *string { return &s }

func TestWriteFailureReport(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	failed := &models.PendingUpdate{JobID: 1, Status: strPtr("bogus"), Notes: strPtr("typo in status")}
	require.NoError(t, db.EnqueueUpdate(ctx, failed))
	require.NoError(t, db.MarkFailed(ctx, failed.ID, "http 400: unknown status"))

	stalled := &models.PendingUpdate{JobID: 2, Status: strPtr(models.JobStatusComplete)}
	require.NoError(t, db.EnqueueUpdate(ctx, stalled))
	require.NoError(t, db.MarkStalled(ctx, stalled.ID, "retry budget exhausted"))

	// A synced entry must not appear in the report.
	synced := &models.PendingUpdate{JobID: 3, Status: strPtr(models.JobStatusComplete)}
	require.NoError(t, db.EnqueueUpdate(ctx, synced))
	require.NoError(t, db.MarkSynced(ctx, synced.ID))

	reporter := NewReporter(db, t.TempDir())
	path, err := reporter.WriteFailureReport(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Unsynced updates")
	require.NoError(t, err)
	// Header plus the failed and the stalled entry.
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, models.StateFailed, rows[1][2])
	assert.Equal(t, "http 400: unknown status", rows[1][8])
	assert.Equal(t, models.StateStalled, rows[2][2])
}

func TestSubscribeWritesReportOnFailureEvents(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	failed := &models.PendingUpdate{JobID: 1, Status: strPtr("bogus")}
	require.NoError(t, db.EnqueueUpdate(ctx, failed))
	require.NoError(t, db.MarkFailed(ctx, failed.ID, "http 400: unknown status"))

	dir := t.TempDir()
	reporter := NewReporter(db, dir)
	bus := events.NewEventBus()
	nop := zerolog.Nop()
	reporter.Subscribe(bus, &nop)

	// Nothing written until an entry actually fails or stalls.
	require.NoError(t, bus.PublishJSON(events.EventUpdateSynced, events.UpdateEventPayload{UpdateID: 9, JobID: 9, State: models.StateSynced}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, bus.PublishJSON(events.EventUpdateFailed, events.UpdateEventPayload{
		UpdateID: failed.ID, JobID: failed.JobID, State: models.StateFailed,
	}))

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := excelize.OpenFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Unsynced updates")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.StateFailed, rows[1][2])

	// A stalled entry triggers a rewrite too. Reports within the same second
	// share a filename, so count files loosely.
	stalled := &models.PendingUpdate{JobID: 2, Status: strPtr(models.JobStatusComplete)}
	require.NoError(t, db.EnqueueUpdate(ctx, stalled))
	require.NoError(t, db.MarkStalled(ctx, stalled.ID, "retry budget exhausted"))
	require.NoError(t, bus.PublishJSON(events.EventUpdateStalled, events.UpdateEventPayload{
		UpdateID: stalled.ID, JobID: stalled.JobID, State: models.StateStalled,
	}))

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 1)
}

func TestWriteFailureReportEmptyQueue(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	reporter := NewReporter(db, t.TempDir())
	path, err := reporter.WriteFailureReport(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Unsynced updates")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
