package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fieldsync/internal/domain"
	"fieldsync/internal/events"
	"fieldsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Reporter writes failed and stalled queue entries to an xlsx file so a
// dispatcher can resolve them by hand.
type Reporter struct {
	store domain.Store
	dir   string
}

func NewReporter(store domain.Store, dir string) *Reporter {
	return &Reporter{store: store, dir: dir}
}

// Subscribe rewrites the report whenever a queue entry goes failed or
// stalled, so the file on disk tracks the entries needing manual attention.
func (r *Reporter) Subscribe(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		path, err := r.WriteFailureReport(context.Background())
		if err != nil {
			logger.Error().Err(err).Str("trigger", event.Type).Msg("Failure report write failed")
			return err
		}
		logger.Info().Str("path", path).Str("trigger", event.Type).Msg("Failure report written")
		return nil
	}
	bus.Subscribe(events.EventUpdateFailed, handler)
	bus.Subscribe(events.EventUpdateStalled, handler)
}

// WriteFailureReport produces the report file and returns its path. An empty
// queue still produces a file with headers only.
func (r *Reporter) WriteFailureReport(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	failed, err := r.store.ListFailed(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting failed updates: %v", err)
	}
	stalled, err := r.store.ListStalled(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting stalled updates: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Unsynced updates"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Job", "State", "Status", "Notes", "Photos", "Captured", "Retries", "Last error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	_ = f.SetCellStyle(sheetName, "A1", "I1", style)

	row := 2
	for _, batch := range [][]models.PendingUpdate{failed, stalled} {
		for _, u := range batch {
			writeRow(f, sheetName, row, u)
			row++
		}
	}

	_ = f.SetColWidth(sheetName, "E", "E", 40)
	_ = f.SetColWidth(sheetName, "I", "I", 50)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("unsynced_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	path := filepath.Join(r.dir, fileName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving report: %v", err)
	}
	return path, nil
}

func writeRow(f *excelize.File, sheet string, row int, u models.PendingUpdate) {
	set := func(col int, value interface{}) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)
	}

	set(1, u.ID)
	set(2, u.JobID)
	set(3, u.SyncState)
	if u.Status != nil {
		set(4, *u.Status)
	}
	if u.Notes != nil {
		set(5, *u.Notes)
	}
	set(6, len(u.Photos))
	set(7, u.Timestamp.Format(time.RFC3339))
	set(8, u.RetryCount)
	if u.LastError != nil {
		set(9, *u.LastError)
	}
}
