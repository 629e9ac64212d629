// ABOUTME: In-memory fan-out of record list snapshots to watchers
// ABOUTME: Each watcher holds only the latest snapshot so slow readers never block writers

package records

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/regionsync/internal/store"
)

// Snapshot is the full ordered record list at one point in time.
type Snapshot []store.Record

// Broadcaster provides in-memory pub/sub for record list snapshots.
// A subscriber's channel has capacity one; publishing replaces an unread
// snapshot so every subscriber eventually observes the latest list.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Snapshot // subID -> ch
	closed      bool
	done        chan struct{}
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Snapshot),
		done:        make(chan struct{}),
		logger:      logger.With("component", "records.broadcaster"),
	}
}

// Subscribe registers a subscriber. The subscription is removed and its
// channel closed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Publish delivers snap to every subscriber without blocking.
func (b *Broadcaster) Publish(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		offerLatest(ch, snap)
	}
}

// SendTo delivers snap to a single subscriber.
func (b *Broadcaster) SendTo(subID string, snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ch, ok := b.subscribers[subID]; ok {
		offerLatest(ch, snap)
	}
}

// offerLatest puts snap in ch, discarding a stale unread snapshot if needed.
// Callers hold the read lock, so ch cannot be closed concurrently.
func offerLatest(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.closed = true
	close(b.done)

	b.logger.Debug("broadcaster closed")
}
