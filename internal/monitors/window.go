package monitors

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lmeyer/session-scribe/internal/metrics"
	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

// WindowInfo is the result of one foreground window query.
type WindowInfo struct {
	App   string `json:"app"`
	Title string `json:"title"`
	PID   int32  `json:"pid"`
}

// WindowQuery is the external collaborator that answers "what is the
// foreground window right now". Failures are expected and transient.
type WindowQuery interface {
	FrontmostWindow() (WindowInfo, error)
}

// WindowQueryFunc adapts a function literal to the WindowQuery interface.
type WindowQueryFunc func() (WindowInfo, error)

// FrontmostWindow calls the underlying function.
func (f WindowQueryFunc) FrontmostWindow() (WindowInfo, error) {
	return f()
}

// WindowTracker polls the foreground (app, window title) pair on a fixed
// interval and emits a window_change event only on transition. It starts in
// an untracked state, so the first successful poll always emits. Failed polls
// hold the last-known state and are counted, never fatal.
type WindowTracker struct {
	bus      *timeline.Bus
	query    WindowQuery
	interval time.Duration
	clock    func() time.Time
	done     chan bool

	// resolveName maps a PID to a process name when the query collaborator
	// only knows the PID. Replaceable in tests.
	resolveName func(int32) (string, error)

	mu       sync.Mutex
	tracking bool
	current  WindowInfo

	failures atomic.Uint64
}

// NewWindowTracker creates a tracker polling query on the given interval.
func NewWindowTracker(bus *timeline.Bus, query WindowQuery, interval time.Duration) *WindowTracker {
	return &WindowTracker{
		bus:         bus,
		query:       query,
		interval:    interval,
		clock:       time.Now,
		done:        make(chan bool),
		resolveName: resolveProcessName,
	}
}

// Run polls until Stop is called. Polls once immediately on start.
func (t *WindowTracker) Run() {
	log.Info().Dur("interval", t.interval).Msg("Starting window tracker...")
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.PollOnce()

	for {
		select {
		case <-t.done:
			log.Info().Msg("Stopping window tracker.")
			return
		case <-ticker.C:
			t.PollOnce()
		}
	}
}

// Stop halts the polling loop.
func (t *WindowTracker) Stop() {
	t.done <- true
}

// PollOnce performs a single poll and reports whether it emitted an event.
func (t *WindowTracker) PollOnce() bool {
	info, err := t.query.FrontmostWindow()
	if err != nil {
		t.failures.Add(1)
		metrics.ObserveWindowPollFailure()
		log.Debug().Err(err).Msg("Window poll failed, holding last-known state")
		return false
	}

	if info.App == "" && info.PID > 0 {
		if name, err := t.resolveName(info.PID); err == nil && name != "" {
			info.App = name
		}
	}

	t.mu.Lock()
	if t.tracking && info.App == t.current.App && info.Title == t.current.Title {
		t.mu.Unlock()
		return false
	}
	prev := t.current
	wasTracking := t.tracking
	t.current = info
	t.tracking = true
	t.mu.Unlock()

	var prevApp, prevTitle string
	if wasTracking {
		prevApp, prevTitle = prev.App, prev.Title
	}
	ev := models.NewWindowChange(t.clock(), info.App, info.Title, info.PID, prevApp, prevTitle)
	seq := t.bus.Ingest(ev)
	log.Info().Uint64("seq", seq).Str("app", info.App).Str("title", info.Title).Msg("Window changed")
	return true
}

// Current returns the last-known window and whether one is tracked yet.
func (t *WindowTracker) Current() (WindowInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.tracking
}

// Failures reports the number of failed polls since start.
func (t *WindowTracker) Failures() uint64 {
	return t.failures.Load()
}

func resolveProcessName(pid int32) (string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return p.Name()
}
