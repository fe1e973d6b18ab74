// SPDX-License-Identifier: MIT

// Package broadcast implements spec.md §4.5's fan-out stage: one encoded
// WireFrame, published once per completed window, delivered to every
// currently subscribed consumer (an SSE stream, a WebSocket connection, the
// operator console). It is grounded on the teacher's
// internal/transport/websocket.go client-map-plus-broadcast-channel shape,
// generalized from "one shared broadcast channel fed to all clients
// identically" to "one bounded channel per subscriber, each independently
// subject to drop-oldest-on-full" so a single slow consumer can never stall
// the publisher or starve the others.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"ultrasonic/internal/frame"
)

// DefaultCapacity is the per-subscriber channel depth used when a
// Broadcaster is constructed without an explicit override.
const DefaultCapacity = 4

// Subscription is a consumer's handle onto a Broadcaster. Frames returns
// the channel to range over; Unsubscribe (via the owning Broadcaster) tears
// it down.
type Subscription struct {
	id     uuid.UUID
	frames chan *frame.WireFrame

	droppedByLag uint64
}

// ID returns the subscriber ID, the same opaque value surfaced by the
// façade for diagnostics.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Frames returns the channel of WireFrames delivered to this subscriber.
// It is closed when the subscription is torn down via Unsubscribe or the
// Broadcaster is closed.
func (s *Subscription) Frames() <-chan *frame.WireFrame { return s.frames }

// DroppedByLag reports how many frames this subscriber lost to
// drop-oldest because it failed to drain its channel in time.
func (s *Subscription) DroppedByLag() uint64 { return atomic.LoadUint64(&s.droppedByLag) }

// Broadcaster fans a stream of WireFrames out to any number of
// subscribers. A publish that finds a subscriber's channel full drops that
// subscriber's oldest buffered frame to make room, rather than blocking or
// dropping the new frame — a lagging consumer always sees the most recent
// state once it catches up, never a stale one stuck behind a full buffer.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[uuid.UUID]*Subscription
	capacity int
	closed   bool

	totalPublished uint64
	totalDropped   uint64
}

// Snapshot is a point-in-time view of a Broadcaster's fan-out counters.
type Snapshot struct {
	SubscriberCount int
	TotalPublished  uint64
	TotalDropped    uint64
}

// NewBroadcaster constructs a Broadcaster whose per-subscriber channels
// hold capacity frames before drop-oldest kicks in.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster{
		subs:     make(map[uuid.UUID]*Subscription),
		capacity: capacity,
	}
}

// Subscribe registers a new consumer and returns its Subscription.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:     uuid.New(),
		frames: make(chan *frame.WireFrame, b.capacity),
	}
	if !b.closed {
		b.subs[sub.id] = sub
	} else {
		close(sub.frames)
	}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once for the same ID.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.frames)
}

// Publish delivers wf to every current subscriber, dropping each
// subscriber's oldest buffered frame if its channel is full.
func (b *Broadcaster) Publish(wf *frame.WireFrame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	atomic.AddUint64(&b.totalPublished, 1)

	for _, sub := range b.subs {
		select {
		case sub.frames <- wf:
			continue
		default:
		}

		// Channel full: drop the oldest buffered frame, then retry once.
		// Both operations are best-effort non-blocking; if a concurrent
		// reader drained the channel between the two selects, the second
		// send below still succeeds or the channel is no longer full.
		select {
		case <-sub.frames:
		default:
		}
		select {
		case sub.frames <- wf:
		default:
		}
		atomic.AddUint64(&sub.droppedByLag, 1)
		atomic.AddUint64(&b.totalDropped, 1)
	}
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Snapshot returns the Broadcaster's current subscriber count and
// cumulative publish/drop counters.
func (b *Broadcaster) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		SubscriberCount: len(b.subs),
		TotalPublished:  atomic.LoadUint64(&b.totalPublished),
		TotalDropped:    atomic.LoadUint64(&b.totalDropped),
	}
}

// Close tears down every subscription and marks the Broadcaster so any
// future Subscribe call returns an already-closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		close(sub.frames)
		delete(b.subs, id)
	}
	b.closed = true
}
