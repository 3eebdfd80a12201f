// Package timeline implements the event bus: the single synchronization point
// between the capture monitors and everything downstream.
package timeline

import (
	"sync"

	"github.com/lmeyer/session-scribe/internal/metrics"
	"github.com/lmeyer/session-scribe/internal/models"
)

// Observer is notified of every ingested event, after its sequence has been
// assigned. Observers run on the producer's goroutine and must not block.
type Observer func(models.Event)

// Bus is the append-only, monotonically ordered timeline buffer. Producers
// call Ingest concurrently; sequence assignment is serialized under one lock,
// so insertion order and sequence order are the same thing. Sequence is the
// ordering truth: a producer whose clock lags still lands after events that
// arrived before it.
type Bus struct {
	mu      sync.Mutex
	lastSeq uint64
	events  []models.Event // ascending, contiguous sequences

	obsMu     sync.RWMutex
	observers []Observer
}

// NewBus creates an empty timeline bus.
func NewBus() *Bus {
	return &Bus{}
}

// NewBusStartingAt creates an empty bus whose first assigned sequence is
// seq+1. Seeding it with the store's highest persisted sequence keeps
// sequences unique across restarts over the same database; otherwise new
// events would collide with prior-run rows and never pass the durable cursor.
func NewBusStartingAt(seq uint64) *Bus {
	return &Bus{lastSeq: seq}
}

// Subscribe registers an observer for future ingests.
func (b *Bus) Subscribe(fn Observer) {
	b.obsMu.Lock()
	b.observers = append(b.observers, fn)
	b.obsMu.Unlock()
}

// Ingest assigns the next sequence number to the event, appends it to the
// buffer, and returns the assigned sequence. Safe for concurrent use.
func (b *Bus) Ingest(e *models.Event) uint64 {
	b.mu.Lock()
	b.lastSeq++
	e.Sequence = b.lastSeq
	b.events = append(b.events, *e)
	stored := *e
	depth := len(b.events)
	b.mu.Unlock()

	metrics.ObserveIngest(string(stored.Kind), depth)

	b.obsMu.RLock()
	observers := b.observers
	b.obsMu.RUnlock()
	for _, fn := range observers {
		fn(stored)
	}
	return stored.Sequence
}

// Snapshot returns a copy of the buffered events in sequence order.
func (b *Bus) Snapshot() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Event, len(b.events))
	copy(out, b.events)
	return out
}

// DrainSince returns a copy of all buffered events with a sequence strictly
// greater than seq, in ascending order. It does not remove anything; eviction
// is explicit so that flushes stay at-least-once.
func (b *Bus) DrainSince(seq uint64) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexAfter(seq)
	out := make([]models.Event, len(b.events)-i)
	copy(out, b.events[i:])
	return out
}

// AttachScreenshot sets the screenshot reference on the event with the given
// sequence. It succeeds at most once per event: a second attach, or an attach
// for an unknown or already-evicted sequence, returns false.
func (b *Bus) AttachScreenshot(seq uint64, ref string) bool {
	if ref == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return false
	}
	first := b.events[0].Sequence
	if seq < first || seq > b.lastSeq {
		return false
	}
	i := int(seq - first)
	if b.events[i].Screenshot != "" {
		return false
	}
	b.events[i].Screenshot = ref
	return true
}

// EvictThrough removes events with a sequence up to and including seq, but
// always retains the most recent `keep` events for in-memory snapshots.
func (b *Bus) EvictThrough(seq uint64, keep int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cut := b.indexAfter(seq)
	if max := len(b.events) - keep; cut > max {
		cut = max
	}
	if cut <= 0 {
		return
	}
	remaining := make([]models.Event, len(b.events)-cut)
	copy(remaining, b.events[cut:])
	b.events = remaining
	metrics.SetBufferDepth(len(b.events))
}

// Len reports the current buffer depth.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// LastSequence reports the most recently assigned sequence number.
func (b *Bus) LastSequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeq
}

// indexAfter returns the index of the first buffered event with a sequence
// greater than seq. Caller holds b.mu. Sequences are contiguous, so this is
// plain offset arithmetic.
func (b *Bus) indexAfter(seq uint64) int {
	if len(b.events) == 0 {
		return 0
	}
	first := b.events[0].Sequence
	if seq < first {
		return 0
	}
	i := int(seq-first) + 1
	if i > len(b.events) {
		i = len(b.events)
	}
	return i
}
