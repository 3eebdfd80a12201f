package writer

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/storage"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

func newTestWriter(t *testing.T, bus *timeline.Bus, retain int) (*Writer, *storage.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "timeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	w, err := NewWriter(bus, store, Options{
		Interval:   time.Second,
		Retain:     retain,
		ExportPath: filepath.Join(dir, "timeline.json"),
		Format:     FormatJSON,
	})
	require.NoError(t, err)
	return w, store, dir
}

func ingestKeys(bus *timeline.Bus, n int) {
	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bus.Ingest(models.NewKeyPress(at.Add(time.Duration(i)*time.Second), 0, "a", "a", models.Modifiers{}))
	}
}

func TestNewWriterValidation(t *testing.T) {
	bus := timeline.NewBus()
	store, err := storage.Open(filepath.Join(t.TempDir(), "timeline.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = NewWriter(bus, store, Options{Interval: 0, Format: FormatJSON})
	assert.Error(t, err)
	_, err = NewWriter(bus, store, Options{Interval: time.Second, Format: "xml"})
	assert.Error(t, err)
}

func TestFlushMovesDeltaAndEvicts(t *testing.T) {
	bus := timeline.NewBus()
	w, store, _ := newTestWriter(t, bus, 2)
	ingestKeys(bus, 5)

	n, err := w.Flush()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), w.Cursor())

	count, err := store.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	assert.Equal(t, 2, bus.Len(), "retention tail survives eviction")
}

func TestFlushIsIdempotentWithNoNewEvents(t *testing.T) {
	bus := timeline.NewBus()
	w, store, _ := newTestWriter(t, bus, 0)
	ingestKeys(bus, 3)

	n, err := w.Flush()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Second flush with no new events is an empty delta.
	n, err = w.Flush()
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := store.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestFailedFlushKeepsCursorAndBuffer(t *testing.T) {
	bus := timeline.NewBus()
	w, store, _ := newTestWriter(t, bus, 0)
	ingestKeys(bus, 3)

	// Force a storage failure; the buffer stays the source of truth.
	require.NoError(t, store.Close())

	_, err := w.Flush()
	assert.Error(t, err)
	assert.Zero(t, w.Cursor())
	assert.Equal(t, 3, bus.Len(), "nothing evicted on a failed flush")
}

func TestCursorResumesFromStore(t *testing.T) {
	bus := timeline.NewBus()
	w, store, _ := newTestWriter(t, bus, 0)
	ingestKeys(bus, 4)
	_, err := w.Flush()
	require.NoError(t, err)

	// A writer built over the same store after a restart resumes past the
	// durable events instead of replaying from zero.
	resumed, err := NewWriter(timeline.NewBus(), store, Options{
		Interval: time.Second,
		Format:   FormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), resumed.Cursor())
}

func TestRestartFlushesNewEvents(t *testing.T) {
	bus := timeline.NewBus()
	w, store, _ := newTestWriter(t, bus, 0)
	ingestKeys(bus, 3)
	_, err := w.Flush()
	require.NoError(t, err)

	// Simulated restart over the same database: the new bus continues the
	// sequence numbering past the durable rows, so the new run's events sit
	// beyond the resumed cursor instead of colliding with old sequences.
	max, err := store.MaxSequence()
	require.NoError(t, err)
	restarted := timeline.NewBusStartingAt(max)
	resumed, err := NewWriter(restarted, store, Options{
		Interval: time.Second,
		Format:   FormatJSON,
	})
	require.NoError(t, err)

	ingestKeys(restarted, 2)
	n, err := resumed.Flush()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the new run's events are made durable")
	assert.Equal(t, uint64(5), resumed.Cursor())

	count, err := store.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestExportJSONRoundTrip(t *testing.T) {
	bus := timeline.NewBus()
	w, _, _ := newTestWriter(t, bus, 0)

	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	bus.Ingest(models.NewKeyPress(at, 0, "a", "a", models.Modifiers{Shift: true}))
	click := models.NewMouseClick(at.Add(time.Second), "left", 50, 60)
	seq := bus.Ingest(click)
	bus.AttachScreenshot(seq, "screenshots/shot_1.png")
	bus.Ingest(models.NewWindowChange(at.Add(2*time.Second), "Safari", "Docs", 0, "Mail", "Inbox"))

	want := bus.Snapshot()

	path, err := w.Export(FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []models.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got, "parsed timeline equals the snapshot by value")
}

func TestExportCSV(t *testing.T) {
	bus := timeline.NewBus()
	w, _, _ := newTestWriter(t, bus, 0)

	at := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	bus.Ingest(models.NewKeyPress(at, 0, "a", "a", models.Modifiers{}))
	bus.Ingest(models.NewMouseClick(at, "left", 50, 60))

	path, err := w.Export(FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, ".csv", filepath.Ext(path))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per event")
	assert.Equal(t, models.CSVHeader(), rows[0])
	assert.Equal(t, "key_press", rows[1][3])
	assert.Equal(t, "mouse_click", rows[2][3])
}

func TestExportEmptyTimelineIsValidJSON(t *testing.T) {
	bus := timeline.NewBus()
	w, _, _ := newTestWriter(t, bus, 0)

	path, err := w.Export("")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []models.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Empty(t, got)
}

func TestConcurrentExportsProduceValidTimeline(t *testing.T) {
	bus := timeline.NewBus()
	w, _, _ := newTestWriter(t, bus, 0)
	ingestKeys(bus, 3)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Export(FormatJSON)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(w.exportPath(FormatJSON))
	require.NoError(t, err)
	var got []models.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got, 3)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	bus := timeline.NewBus()
	w, _, _ := newTestWriter(t, bus, 0)
	_, err := w.Export("xml")
	assert.Error(t, err)
}

func TestScheduleExportsValidation(t *testing.T) {
	bus := timeline.NewBus()
	w, _, _ := newTestWriter(t, bus, 0)
	defer func() {
		if w.cron != nil {
			w.cron.Stop()
		}
	}()

	assert.Error(t, w.ScheduleExports("not a cron spec"))
	assert.NoError(t, w.ScheduleExports("@every 5m"))
}

func TestRunStop(t *testing.T) {
	bus := timeline.NewBus()
	w, store, _ := newTestWriter(t, bus, 0)
	ingestKeys(bus, 2)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	// Give the loop a moment to start, then stop it and flush explicitly.
	time.Sleep(10 * time.Millisecond)
	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}

	_, err := w.Flush()
	require.NoError(t, err)
	count, err := store.CountEvents()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
