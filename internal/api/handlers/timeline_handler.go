package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/monitors"
	"github.com/lmeyer/session-scribe/internal/screenshot"
	"github.com/lmeyer/session-scribe/internal/storage"
	"github.com/lmeyer/session-scribe/internal/timeline"
	"github.com/lmeyer/session-scribe/internal/writer"
)

// TimelineHandler handles HTTP requests for the captured timeline.
type TimelineHandler struct {
	bus     *timeline.Bus
	store   *storage.Store
	writer  *writer.Writer
	tracker *monitors.WindowTracker
	trigger *screenshot.Trigger
	started time.Time
}

// NewTimelineHandler creates a new TimelineHandler.
func NewTimelineHandler(bus *timeline.Bus, store *storage.Store, w *writer.Writer, tracker *monitors.WindowTracker, trigger *screenshot.Trigger) *TimelineHandler {
	return &TimelineHandler{
		bus:     bus,
		store:   store,
		writer:  w,
		tracker: tracker,
		trigger: trigger,
		started: time.Now(),
	}
}

// GetRecent handles the request to get the most recent durable events,
// newest first.
func (h *TimelineHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}

	events, err := h.store.RecentEvents(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve events")
		http.Error(w, "Failed to retrieve events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	respondJSON(w, events)
}

// GetSnapshot returns the in-memory buffer in sequence order, including
// events not yet flushed.
func (h *TimelineHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.bus.Snapshot())
}

// Export flushes and writes the consolidated timeline to disk in the
// requested format (?format=json|csv, defaulting to the configured one).
func (h *TimelineHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && !writer.ValidFormat(format) {
		http.Error(w, "Unsupported format: "+format, http.StatusBadRequest)
		return
	}

	path, err := h.writer.Export(format)
	if err != nil {
		log.Error().Err(err).Msg("Timeline export failed")
		http.Error(w, "Export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"path": path})
}

// statusResponse is the shape of the /status endpoint.
type statusResponse struct {
	UptimeSeconds      float64             `json:"uptime_seconds"`
	BufferedEvents     int                 `json:"buffered_events"`
	DurableEvents      int64               `json:"durable_events"`
	LastSequence       uint64              `json:"last_sequence"`
	DurableCursor      uint64              `json:"durable_cursor"`
	Window             monitors.WindowInfo `json:"window"`
	WindowPollFailures uint64              `json:"window_poll_failures"`
	Screenshots        screenshotStats     `json:"screenshots"`
	HostCPUPercent     float64             `json:"host_cpu_percent"`
	HostMemPercent     float64             `json:"host_mem_percent"`
}

type screenshotStats struct {
	Captured  uint64 `json:"captured"`
	Throttled uint64 `json:"throttled"`
	Failed    uint64 `json:"failed"`
}

// GetStatus reports capture health: buffer depth, durable progress, the
// window currently tracked, screenshot counters and host load.
func (h *TimelineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountEvents()
	if err != nil {
		log.Error().Err(err).Msg("Failed to count durable events")
		http.Error(w, "Failed to read status: "+err.Error(), http.StatusInternalServerError)
		return
	}

	captured, throttled, failed := h.trigger.Stats()
	window, _ := h.tracker.Current()
	resp := statusResponse{
		UptimeSeconds:      time.Since(h.started).Seconds(),
		BufferedEvents:     h.bus.Len(),
		DurableEvents:      count,
		LastSequence:       h.bus.LastSequence(),
		DurableCursor:      h.writer.Cursor(),
		Window:             window,
		WindowPollFailures: h.tracker.Failures(),
		Screenshots:        screenshotStats{Captured: captured, Throttled: throttled, Failed: failed},
	}

	// Host load is best effort; the status endpoint still answers without it.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.HostCPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.HostMemPercent = vm.UsedPercent
	}

	respondJSON(w, resp)
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
