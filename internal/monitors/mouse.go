package monitors

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

// ScreenshotRequester is the fire-and-forget enrichment hook for events that
// warrant a screenshot. Request must return immediately.
type ScreenshotRequester interface {
	Request(seq uint64, reason string, x, y float64) bool
}

// MouseMonitor turns raw click and scroll callbacks into events. Coordinates
// are absolute screen coordinates and pass through untransformed; display
// scaling is the screenshot collaborator's problem.
type MouseMonitor struct {
	bus     *timeline.Bus
	trigger ScreenshotRequester
	clock   func() time.Time
	running atomic.Bool
}

// NewMouseMonitor creates a mouse monitor feeding the given bus. trigger may
// be nil to disable screenshot enrichment.
func NewMouseMonitor(bus *timeline.Bus, trigger ScreenshotRequester) *MouseMonitor {
	return &MouseMonitor{bus: bus, trigger: trigger, clock: time.Now}
}

// Start begins accepting hook callbacks.
func (m *MouseMonitor) Start() {
	m.running.Store(true)
	log.Info().Msg("Mouse monitor started")
}

// Stop makes the monitor ignore further callbacks.
func (m *MouseMonitor) Stop() {
	m.running.Store(false)
	log.Info().Msg("Mouse monitor stopped")
}

// HandleClick records one click callback and requests a screenshot for it.
func (m *MouseMonitor) HandleClick(button string, x, y float64) {
	if !m.running.Load() {
		return
	}
	ev := models.NewMouseClick(m.clock(), button, x, y)
	seq := m.bus.Ingest(ev)
	log.Debug().Uint64("seq", seq).Str("button", button).Float64("x", x).Float64("y", y).Msg("Mouse click")

	if m.trigger != nil {
		m.trigger.Request(seq, "click", x, y)
	}
}

// HandleScroll records one scroll callback. Scrolls do not trigger
// screenshots.
func (m *MouseMonitor) HandleScroll(x, y, deltaX, deltaY float64) {
	if !m.running.Load() {
		return
	}
	ev := models.NewMouseScroll(m.clock(), x, y, deltaX, deltaY)
	seq := m.bus.Ingest(ev)
	log.Debug().Uint64("seq", seq).Float64("dx", deltaX).Float64("dy", deltaY).Msg("Mouse scroll")
}
