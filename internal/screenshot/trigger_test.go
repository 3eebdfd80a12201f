package screenshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmeyer/session-scribe/internal/models"
	"github.com/lmeyer/session-scribe/internal/timeline"
)

func newTestTrigger(t *testing.T, capturer Capturer, attacher Attacher, clock func() time.Time) *Trigger {
	t.Helper()
	trigger, err := NewTrigger(Options{
		Capturer:    capturer,
		Attacher:    attacher,
		MinInterval: 500 * time.Millisecond,
		Clock:       clock,
	})
	require.NoError(t, err)
	return trigger
}

func TestNewTriggerValidation(t *testing.T) {
	capturer := CapturerFunc(func(context.Context, Request) (string, error) { return "x.png", nil })
	bus := timeline.NewBus()

	_, err := NewTrigger(Options{Attacher: bus, MinInterval: time.Second})
	assert.Error(t, err, "nil capturer")
	_, err = NewTrigger(Options{Capturer: capturer, MinInterval: time.Second})
	assert.Error(t, err, "nil attacher")
	_, err = NewTrigger(Options{Capturer: capturer, Attacher: bus})
	assert.Error(t, err, "zero interval")
}

func TestThrottleDropsRequestsInsideWindow(t *testing.T) {
	bus := timeline.NewBus()
	var seqs []uint64
	for i := 0; i < 5; i++ {
		seqs = append(seqs, bus.Ingest(models.NewMouseClick(time.Now(), "left", 1, 2)))
	}

	var mu sync.Mutex
	captures := 0
	capturer := CapturerFunc(func(_ context.Context, req Request) (string, error) {
		mu.Lock()
		captures++
		n := captures
		mu.Unlock()
		return fmt.Sprintf("shot_%d.png", n), nil
	})

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	trigger := newTestTrigger(t, capturer, bus, func() time.Time { return now })

	// Five clicks inside one throttle window: exactly one capture dispatched.
	admitted := 0
	for _, seq := range seqs {
		if trigger.Request(seq, "click", 1, 2) {
			admitted++
		}
	}
	trigger.Close(time.Second)

	assert.Equal(t, 1, admitted)
	mu.Lock()
	assert.Equal(t, 1, captures)
	mu.Unlock()

	withRef := 0
	for _, ev := range bus.Snapshot() {
		if ev.Screenshot != "" {
			withRef++
		}
	}
	assert.Equal(t, 1, withRef, "throttled events keep an empty reference")

	_, throttled, _ := trigger.Stats()
	assert.Equal(t, uint64(4), throttled)
}

func TestRequestsOutsideWindowAreAdmitted(t *testing.T) {
	bus := timeline.NewBus()
	seq1 := bus.Ingest(models.NewMouseClick(time.Now(), "left", 1, 2))
	seq2 := bus.Ingest(models.NewMouseClick(time.Now(), "left", 3, 4))

	capturer := CapturerFunc(func(_ context.Context, req Request) (string, error) {
		return fmt.Sprintf("shot_%d.png", req.Sequence), nil
	})

	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	trigger := newTestTrigger(t, capturer, bus, func() time.Time { return now })

	assert.True(t, trigger.Request(seq1, "click", 1, 2))
	now = now.Add(600 * time.Millisecond)
	assert.True(t, trigger.Request(seq2, "click", 3, 4))
	trigger.Close(time.Second)

	snap := bus.Snapshot()
	assert.Equal(t, "shot_1.png", snap[0].Screenshot)
	assert.Equal(t, "shot_2.png", snap[1].Screenshot)
}

func TestCaptureFailureLeavesEventValid(t *testing.T) {
	bus := timeline.NewBus()
	seq := bus.Ingest(models.NewMouseClick(time.Now(), "left", 1, 2))

	capturer := CapturerFunc(func(context.Context, Request) (string, error) {
		return "", errors.New("display asleep")
	})
	trigger := newTestTrigger(t, capturer, bus, nil)

	assert.True(t, trigger.Request(seq, "click", 1, 2))
	trigger.Close(time.Second)

	snap := bus.Snapshot()
	require.Len(t, snap, 1)
	assert.Empty(t, snap[0].Screenshot)

	_, _, failed := trigger.Stats()
	assert.Equal(t, uint64(1), failed)
}

func TestCloseAbandonsSlowCaptures(t *testing.T) {
	bus := timeline.NewBus()
	seq := bus.Ingest(models.NewMouseClick(time.Now(), "left", 1, 2))

	started := make(chan struct{})
	capturer := CapturerFunc(func(ctx context.Context, _ Request) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	trigger := newTestTrigger(t, capturer, bus, nil)

	require.True(t, trigger.Request(seq, "click", 1, 2))
	<-started

	done := make(chan struct{})
	go func() {
		trigger.Close(20 * time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after grace period")
	}

	snap := bus.Snapshot()
	assert.Empty(t, snap[0].Screenshot, "abandoned capture leaves the reference unset")
}

func TestRequestAfterCloseIsRejected(t *testing.T) {
	bus := timeline.NewBus()
	capturer := CapturerFunc(func(context.Context, Request) (string, error) { return "x.png", nil })
	trigger := newTestTrigger(t, capturer, bus, nil)

	trigger.Close(time.Millisecond)
	assert.False(t, trigger.Request(1, "click", 0, 0))
}
