// Package metrics exposes Prometheus collectors for the capture pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_scribe_events_ingested_total",
		Help: "Events accepted by the timeline bus grouped by kind",
	}, []string{"kind"})

	bufferDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_scribe_buffer_depth",
		Help: "Events currently held in the in-memory timeline buffer",
	})

	screenshotRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_scribe_screenshot_requests_total",
		Help: "Screenshot requests grouped by outcome",
	}, []string{"outcome"})

	windowPollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_scribe_window_poll_failures_total",
		Help: "Foreground window polls that returned an error",
	})

	selectionPollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_scribe_selection_poll_failures_total",
		Help: "Text selection polls that returned an error",
	})

	flushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_scribe_flush_total",
		Help: "Timeline flush attempts grouped by status",
	}, []string{"status"})

	flushedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_scribe_flushed_events_total",
		Help: "Events written to durable storage",
	})

	lastFlushedSequence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_scribe_last_flushed_sequence",
		Help: "Highest event sequence confirmed durable",
	})
)

// Screenshot request outcomes.
const (
	ScreenshotCaptured  = "captured"
	ScreenshotThrottled = "throttled"
	ScreenshotFailed    = "failed"
	ScreenshotAbandoned = "abandoned"
	ScreenshotOrphaned  = "orphaned"
)

// ObserveIngest records an accepted event and the resulting buffer depth.
func ObserveIngest(kind string, depth int) {
	eventsIngested.WithLabelValues(kind).Inc()
	bufferDepth.Set(float64(depth))
}

// SetBufferDepth updates the buffer depth gauge after evictions.
func SetBufferDepth(depth int) {
	bufferDepth.Set(float64(depth))
}

// ObserveScreenshot records the outcome of one screenshot request.
func ObserveScreenshot(outcome string) {
	screenshotRequests.WithLabelValues(outcome).Inc()
}

// ObserveWindowPollFailure counts a failed foreground window poll.
func ObserveWindowPollFailure() {
	windowPollFailures.Inc()
}

// ObserveSelectionPollFailure counts a failed text selection poll.
func ObserveSelectionPollFailure() {
	selectionPollFailures.Inc()
}

// ObserveFlush records a flush attempt and, on success, the delta size and
// the new durable cursor.
func ObserveFlush(err error, count int, cursor uint64) {
	if err != nil {
		flushTotal.WithLabelValues("error").Inc()
		return
	}
	flushTotal.WithLabelValues("ok").Inc()
	if count > 0 {
		flushedEvents.Add(float64(count))
		lastFlushedSequence.Set(float64(cursor))
	}
}
