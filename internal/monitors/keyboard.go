// Package monitors contains the producers that translate raw input callbacks
// and polls into canonical timeline events. The OS-level hook and query
// mechanisms stay outside this package, behind small interfaces; monitors own
// timestamping, canonical naming, and the decision of what reaches the bus.
package monitors

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

// KeyboardMonitor turns raw key callbacks from the OS hook collaborator into
// key press/release events. Handle methods are called on whatever goroutine
// the hook uses and must return promptly, so they do nothing but map the code
// and hand the event to the bus. OS autorepeat passes through as distinct
// events; condensing repeated keys is a downstream concern.
type KeyboardMonitor struct {
	bus     *timeline.Bus
	clock   func() time.Time
	running atomic.Bool
}

// NewKeyboardMonitor creates a keyboard monitor feeding the given bus.
func NewKeyboardMonitor(bus *timeline.Bus) *KeyboardMonitor {
	return &KeyboardMonitor{bus: bus, clock: time.Now}
}

// Start begins accepting hook callbacks.
func (m *KeyboardMonitor) Start() {
	m.running.Store(true)
	log.Info().Msg("Keyboard monitor started")
}

// Stop makes the monitor ignore further callbacks. The hook itself is torn
// down by its owner; this only closes the gate on the capture side.
func (m *KeyboardMonitor) Stop() {
	m.running.Store(false)
	log.Info().Msg("Keyboard monitor stopped")
}

// HandleKeyDown records one key-down callback. code is the raw virtual key
// code, char the resolved character if the hook could produce one, flags the
// raw CGEventFlags bitmask.
func (m *KeyboardMonitor) HandleKeyDown(code int, char string, flags uint64) {
	if !m.running.Load() {
		return
	}
	name := KeyName(code)
	ev := models.NewKeyPress(m.clock(), code, name, char, ParseModifierFlags(flags))
	seq := m.bus.Ingest(ev)
	log.Debug().Uint64("seq", seq).Int("code", code).Str("key", name).Msg("Key press")
}

// HandleKeyUp records one key-up callback.
func (m *KeyboardMonitor) HandleKeyUp(code int, char string, flags uint64) {
	if !m.running.Load() {
		return
	}
	name := KeyName(code)
	ev := models.NewKeyRelease(m.clock(), code, name, char, ParseModifierFlags(flags))
	seq := m.bus.Ingest(ev)
	log.Debug().Uint64("seq", seq).Int("code", code).Str("key", name).Msg("Key release")
}
