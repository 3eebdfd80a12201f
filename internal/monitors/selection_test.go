package monitors

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmeyer/session-scribe/internal/timeline"
)

func TestSelectionMonitorEmitsOnChange(t *testing.T) {
	bus := timeline.NewBus()
	texts := []string{"alpha", "alpha", "beta", ""}
	i := 0
	query := SelectionQueryFunc(func() (string, string, error) {
		text := texts[i]
		i++
		return text, "accessibility", nil
	})

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := NewSelectionMonitor(bus, query, time.Second, 3*time.Second)
	m.clock = func() time.Time { return now }

	assert.True(t, m.PollOnce(), "first selection emits")
	now = now.Add(4 * time.Second)
	assert.False(t, m.PollOnce(), "identical selection is a no-op")
	now = now.Add(4 * time.Second)
	assert.True(t, m.PollOnce(), "changed selection emits")
	now = now.Add(4 * time.Second)
	assert.False(t, m.PollOnce(), "empty selection is a no-op")

	snap := bus.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Selection.Text)
	assert.Equal(t, "beta", snap[1].Selection.Text)
	assert.Equal(t, "accessibility", snap[0].Selection.Source)
}

func TestSelectionMonitorMinGapSuppression(t *testing.T) {
	bus := timeline.NewBus()
	i := 0
	query := SelectionQueryFunc(func() (string, string, error) {
		i++
		return strings.Repeat("x", i), "clipboard", nil
	})

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := NewSelectionMonitor(bus, query, time.Second, 3*time.Second)
	m.clock = func() time.Time { return now }

	assert.True(t, m.PollOnce())
	// A different selection one second later stays inside the change threshold.
	now = now.Add(time.Second)
	assert.False(t, m.PollOnce())
	now = now.Add(3 * time.Second)
	assert.True(t, m.PollOnce())

	assert.Equal(t, 2, bus.Len())
}

func TestSelectionMonitorTruncatesLongSelections(t *testing.T) {
	bus := timeline.NewBus()
	query := SelectionQueryFunc(func() (string, string, error) {
		return strings.Repeat("a", maxSelectionLen+500), "clipboard", nil
	})
	m := NewSelectionMonitor(bus, query, time.Second, time.Second)

	require.True(t, m.PollOnce())
	snap := bus.Snapshot()
	require.Len(t, snap, 1)
	assert.Len(t, snap[0].Selection.Text, maxSelectionLen)
}

func TestSelectionMonitorTruncatesOnRuneBoundary(t *testing.T) {
	bus := timeline.NewBus()
	// Three-byte runes that do not divide the byte cap evenly, so a byte-wise
	// cut would land mid-rune.
	query := SelectionQueryFunc(func() (string, string, error) {
		return strings.Repeat("日", maxSelectionLen), "clipboard", nil
	})
	m := NewSelectionMonitor(bus, query, time.Second, time.Second)

	require.True(t, m.PollOnce())
	snap := bus.Snapshot()
	require.Len(t, snap, 1)

	text := snap[0].Selection.Text
	assert.True(t, utf8.ValidString(text), "truncated selection stays valid UTF-8")
	assert.LessOrEqual(t, len(text), maxSelectionLen)
	assert.Greater(t, len(text), maxSelectionLen-utf8.UTFMax)
}

func TestSelectionMonitorQueryFailureIsNonFatal(t *testing.T) {
	bus := timeline.NewBus()
	query := SelectionQueryFunc(func() (string, string, error) {
		return "", "", errors.New("accessibility denied")
	})
	m := NewSelectionMonitor(bus, query, time.Second, time.Second)

	assert.False(t, m.PollOnce())
	assert.Equal(t, 0, bus.Len())
}
