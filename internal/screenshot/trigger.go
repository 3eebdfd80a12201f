// Package screenshot implements the throttled, asynchronous enrichment path
// that attaches screenshot references to timeline events.
package screenshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lmeyer/session-scribe/internal/metrics"
)

// Request describes one screenshot request. X/Y are the screen coordinates
// of the originating event, passed along so the capturer can annotate or
// name the file; the capturer owns naming and storage entirely.
type Request struct {
	Sequence uint64
	Reason   string
	X, Y     float64
}

// Capturer is the external collaborator that performs the actual pixel
// capture and returns a reference (typically a file path) to the result.
type Capturer interface {
	Capture(ctx context.Context, req Request) (string, error)
}

// CapturerFunc adapts a function literal to the Capturer interface.
type CapturerFunc func(ctx context.Context, req Request) (string, error)

// Capture calls the underlying function.
func (f CapturerFunc) Capture(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Attacher receives resolved screenshot references. Attach returns false when
// the reference can no longer be applied (already set, or event evicted).
type Attacher interface {
	AttachScreenshot(seq uint64, ref string) bool
}

// AttacherFunc adapts a function literal to the Attacher interface.
type AttacherFunc func(seq uint64, ref string) bool

// AttachScreenshot calls the underlying function.
func (f AttacherFunc) AttachScreenshot(seq uint64, ref string) bool {
	return f(seq, ref)
}

// Options configure a Trigger.
type Options struct {
	Capturer    Capturer
	Attacher    Attacher
	MinInterval time.Duration
	Clock       func() time.Time
}

// Trigger admits at most one screenshot capture per MinInterval. Requests
// arriving inside the throttle window are dropped, not queued: the
// originating event simply keeps an empty reference. Request returns
// immediately; the capture itself runs on its own goroutine and attaches the
// reference when it resolves. A capture that never resolves is not an error
// for the timeline.
type Trigger struct {
	capturer    Capturer
	attacher    Attacher
	minInterval time.Duration
	clock       func() time.Time

	mu     sync.Mutex
	lastAt time.Time

	closed atomic.Bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	throttled atomic.Uint64
	captured  atomic.Uint64
	failed    atomic.Uint64
}

// NewTrigger validates options and constructs a trigger.
func NewTrigger(opts Options) (*Trigger, error) {
	if opts.Capturer == nil {
		return nil, errors.New("capturer must not be nil")
	}
	if opts.Attacher == nil {
		return nil, errors.New("attacher must not be nil")
	}
	if opts.MinInterval <= 0 {
		return nil, errors.New("min interval must be positive")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		capturer:    opts.Capturer,
		attacher:    opts.Attacher,
		minInterval: opts.MinInterval,
		clock:       clock,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Request asks for a screenshot for the event with the given sequence. It
// returns immediately; the return value reports whether the request was
// admitted past the throttle.
func (t *Trigger) Request(seq uint64, reason string, x, y float64) bool {
	if t.closed.Load() {
		return false
	}

	now := t.clock()
	t.mu.Lock()
	if !t.lastAt.IsZero() && now.Sub(t.lastAt) < t.minInterval {
		t.mu.Unlock()
		t.throttled.Add(1)
		metrics.ObserveScreenshot(metrics.ScreenshotThrottled)
		log.Debug().Uint64("seq", seq).Msg("Screenshot request throttled")
		return false
	}
	t.lastAt = now
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(Request{Sequence: seq, Reason: reason, X: x, Y: y})
	return true
}

func (t *Trigger) run(req Request) {
	defer t.wg.Done()

	ref, err := t.capturer.Capture(t.ctx, req)
	if err != nil {
		if t.ctx.Err() != nil {
			metrics.ObserveScreenshot(metrics.ScreenshotAbandoned)
			log.Debug().Uint64("seq", req.Sequence).Msg("Screenshot abandoned during shutdown")
			return
		}
		t.failed.Add(1)
		metrics.ObserveScreenshot(metrics.ScreenshotFailed)
		log.Warn().Err(err).Uint64("seq", req.Sequence).Msg("Screenshot capture failed")
		return
	}

	if !t.attacher.AttachScreenshot(req.Sequence, ref) {
		metrics.ObserveScreenshot(metrics.ScreenshotOrphaned)
		log.Debug().Uint64("seq", req.Sequence).Str("ref", ref).Msg("Screenshot resolved but event no longer attachable")
		return
	}
	t.captured.Add(1)
	metrics.ObserveScreenshot(metrics.ScreenshotCaptured)
	log.Debug().Uint64("seq", req.Sequence).Str("ref", ref).Msg("Screenshot attached")
}

// Close stops admitting requests, waits up to grace for in-flight captures,
// then cancels whatever is left. Abandoned captures leave their events with
// an empty reference.
func (t *Trigger) Close(grace time.Duration) {
	if t.closed.Swap(true) {
		return
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		log.Warn().Dur("grace", grace).Msg("Abandoning in-flight screenshot captures")
	}
	t.cancel()
}

// Stats reports request counts since start.
func (t *Trigger) Stats() (captured, throttled, failed uint64) {
	return t.captured.Load(), t.throttled.Load(), t.failed.Load()
}
