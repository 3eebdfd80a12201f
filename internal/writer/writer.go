// Package writer moves events from the in-memory timeline buffer into
// durable storage and serializes the timeline to JSON or CSV.
package writer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/metrics"
	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/storage"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

// Timeline export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ValidFormat reports whether format names a supported timeline format.
func ValidFormat(format string) bool {
	return format == FormatJSON || format == FormatCSV
}

// Options configure a Writer.
type Options struct {
	// Interval between periodic flushes.
	Interval time.Duration
	// Retain is the number of events kept in memory after a flush.
	Retain int
	// ExportPath is the timeline file path; its extension follows the format.
	ExportPath string
	// Format is the default export format, json or csv.
	Format string
	// Backoff is the base retry delay after a failed flush; it doubles per
	// consecutive failure up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Writer periodically drains the bus delta into the SQLite store and exports
// the consolidated timeline on demand or on a cron schedule. The durable
// cursor only advances on a successful insert, so a failed flush is retried
// with the buffer as the source of truth: delivery is at-least-once and the
// store de-duplicates by sequence.
type Writer struct {
	bus   *timeline.Bus
	store *storage.Store
	opts  Options
	done  chan bool
	cron  *cron.Cron

	mu       sync.Mutex
	cursor   uint64
	failures int

	// exportMu serializes Export across the cron job, the HTTP handler and
	// shutdown so concurrent exports cannot interleave file writes.
	exportMu sync.Mutex
}

// NewWriter creates a writer resuming its durable cursor from the store.
func NewWriter(bus *timeline.Bus, store *storage.Store, opts Options) (*Writer, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive")
	}
	if !ValidFormat(opts.Format) {
		return nil, fmt.Errorf("unsupported timeline format %q", opts.Format)
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Minute
	}
	cursor, err := store.MaxSequence()
	if err != nil {
		return nil, fmt.Errorf("resume durable cursor: %w", err)
	}
	return &Writer{
		bus:    bus,
		store:  store,
		opts:   opts,
		done:   make(chan bool),
		cursor: cursor,
	}, nil
}

// Cursor returns the highest sequence confirmed durable.
func (w *Writer) Cursor() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

// Run flushes on the configured interval until Stop is called. Failed
// flushes back off exponentially; ticks inside the backoff window are
// skipped.
func (w *Writer) Run() {
	log.Info().Dur("interval", w.opts.Interval).Msg("Starting timeline writer...")
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var nextAttempt time.Time
	for {
		select {
		case <-w.done:
			log.Info().Msg("Stopping timeline writer.")
			return
		case now := <-ticker.C:
			if now.Before(nextAttempt) {
				continue
			}
			if _, err := w.Flush(); err != nil {
				wait := w.backoffDelay()
				nextAttempt = now.Add(wait)
				log.Error().Err(err).Dur("retry_in", wait).Msg("Timeline flush failed")
			} else {
				nextAttempt = time.Time{}
			}
		}
	}
}

// Stop halts the periodic flush loop and any scheduled exports.
func (w *Writer) Stop() {
	if w.cron != nil {
		w.cron.Stop()
	}
	w.done <- true
}

// Flush drains all events past the durable cursor into the store and evicts
// them from the buffer beyond the retention tail. It returns the number of
// events made durable. Flushing with no new events is a no-op, which makes
// back-to-back flushes idempotent.
func (w *Writer) Flush() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delta := w.bus.DrainSince(w.cursor)
	if len(delta) == 0 {
		metrics.ObserveFlush(nil, 0, w.cursor)
		return 0, nil
	}

	if err := w.store.InsertEvents(delta); err != nil {
		w.failures++
		metrics.ObserveFlush(err, 0, w.cursor)
		return 0, fmt.Errorf("persist %d events: %w", len(delta), err)
	}

	w.cursor = delta[len(delta)-1].Sequence
	w.failures = 0
	metrics.ObserveFlush(nil, len(delta), w.cursor)
	w.bus.EvictThrough(w.cursor, w.opts.Retain)

	log.Debug().Int("events", len(delta)).Uint64("cursor", w.cursor).Msg("Timeline flushed")
	return len(delta), nil
}

// backoffDelay returns the capped exponential delay for the current failure
// streak. Caller does not hold w.mu.
func (w *Writer) backoffDelay() time.Duration {
	w.mu.Lock()
	failures := w.failures
	w.mu.Unlock()

	delay := w.opts.Backoff
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= w.opts.MaxBackoff {
			return w.opts.MaxBackoff
		}
	}
	if delay > w.opts.MaxBackoff {
		delay = w.opts.MaxBackoff
	}
	return delay
}

// Export flushes, then serializes the full durable timeline to the
// configured path in the given format (empty means the configured default).
// It returns the path written.
func (w *Writer) Export(format string) (string, error) {
	if format == "" {
		format = w.opts.Format
	}
	if !ValidFormat(format) {
		return "", fmt.Errorf("unsupported timeline format %q", format)
	}

	w.exportMu.Lock()
	defer w.exportMu.Unlock()

	if _, err := w.Flush(); err != nil {
		return "", err
	}

	events, err := w.store.AllEvents()
	if err != nil {
		return "", fmt.Errorf("read durable timeline: %w", err)
	}

	path := w.exportPath(format)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("ensure export directory: %w", err)
		}
	}

	// Write to a temp file and rename so readers never see a half-written
	// timeline.
	tmp := path + ".tmp"
	switch format {
	case FormatJSON:
		err = writeJSON(tmp, events)
	case FormatCSV:
		err = writeCSV(tmp, events)
	}
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("publish timeline: %w", err)
	}

	log.Info().Str("path", path).Int("events", len(events)).Msg("Timeline exported")
	return path, nil
}

// ScheduleExports registers a cron expression for periodic exports in the
// default format. Call Stop to halt the schedule.
func (w *Writer) ScheduleExports(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := w.Export(""); err != nil {
			log.Error().Err(err).Msg("Scheduled timeline export failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	w.cron = c
	c.Start()
	log.Info().Str("schedule", spec).Msg("Scheduled timeline exports")
	return nil
}

// exportPath swaps the configured path's extension to match the format.
func (w *Writer) exportPath(format string) string {
	path := w.opts.ExportPath
	ext := filepath.Ext(path)
	if ext != "" {
		path = strings.TrimSuffix(path, ext)
	}
	return path + "." + format
}

func writeJSON(path string, events []models.Event) error {
	if events == nil {
		events = []models.Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}

func writeCSV(path string, events []models.Event) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create timeline: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(models.CSVHeader()); err != nil {
		return fmt.Errorf("write timeline header: %w", err)
	}
	for i := range events {
		if err := cw.Write(events[i].CSVRecord()); err != nil {
			return fmt.Errorf("write timeline row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush timeline: %w", err)
	}
	return file.Close()
}
