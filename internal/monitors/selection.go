package monitors

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/metrics"
	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

// maxSelectionLen caps recorded selections; anything longer is truncated.
const maxSelectionLen = 1024

// SelectionQuery is the external collaborator that reads the current text
// selection, typically through the accessibility API with a clipboard
// fallback. source names the mechanism that produced the text.
type SelectionQuery interface {
	SelectedText() (text, source string, err error)
}

// SelectionQueryFunc adapts a function literal to the SelectionQuery interface.
type SelectionQueryFunc func() (string, string, error)

// SelectedText calls the underlying function.
func (f SelectionQueryFunc) SelectedText() (string, string, error) {
	return f()
}

// SelectionMonitor polls for text selections and emits a text_selection
// event when the selection differs from the last emitted one, with a minimum
// gap between emissions so rapid re-selections don't flood the timeline.
type SelectionMonitor struct {
	bus      *timeline.Bus
	query    SelectionQuery
	interval time.Duration
	minGap   time.Duration
	clock    func() time.Time
	done     chan bool

	mu       sync.Mutex
	lastText string
	lastEmit time.Time
}

// NewSelectionMonitor creates a selection monitor. minGap is the minimum time
// between two emitted selection events.
func NewSelectionMonitor(bus *timeline.Bus, query SelectionQuery, interval, minGap time.Duration) *SelectionMonitor {
	return &SelectionMonitor{
		bus:      bus,
		query:    query,
		interval: interval,
		minGap:   minGap,
		clock:    time.Now,
		done:     make(chan bool),
	}
}

// Run polls until Stop is called.
func (m *SelectionMonitor) Run() {
	log.Info().Dur("interval", m.interval).Msg("Starting text selection monitor...")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			log.Info().Msg("Stopping text selection monitor.")
			return
		case <-ticker.C:
			m.PollOnce()
		}
	}
}

// Stop halts the polling loop.
func (m *SelectionMonitor) Stop() {
	m.done <- true
}

// PollOnce performs a single poll and reports whether it emitted an event.
func (m *SelectionMonitor) PollOnce() bool {
	now := m.clock()

	m.mu.Lock()
	if !m.lastEmit.IsZero() && now.Sub(m.lastEmit) < m.minGap {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	text, source, err := m.query.SelectedText()
	if err != nil {
		metrics.ObserveSelectionPollFailure()
		log.Debug().Err(err).Msg("Selection poll failed")
		return false
	}
	if text == "" {
		return false
	}
	text = truncateSelection(text)

	m.mu.Lock()
	if text == m.lastText {
		m.mu.Unlock()
		return false
	}
	m.lastText = text
	m.lastEmit = now
	m.mu.Unlock()

	ev := models.NewTextSelection(now, text, source)
	seq := m.bus.Ingest(ev)
	log.Debug().Uint64("seq", seq).Int("len", len(text)).Str("source", source).Msg("Text selection")
	return true
}

// truncateSelection caps the text at maxSelectionLen bytes without splitting
// a UTF-8 rune.
func truncateSelection(text string) string {
	if len(text) <= maxSelectionLen {
		return text
	}
	cut := maxSelectionLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
