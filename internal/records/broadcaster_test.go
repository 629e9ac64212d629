// ABOUTME: Tests for the snapshot broadcaster
// ABOUTME: Covers fan-out, unsubscribe and close semantics

package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/regionsync/internal/store"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Publish(Snapshot{{Token: "A"}})

	assert.Equal(t, "A", (<-ch1)[0].Token)
	assert.Equal(t, "A", (<-ch2)[0].Token)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, id := b.Subscribe(context.Background())
	b.Unsubscribe(id)
	b.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())

	// publishing with no subscribers is harmless
	b.Publish(Snapshot{})
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Close()

	ch, _ := b.Subscribe(context.Background())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_PublishReplacesUnread(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background())
	b.Publish(Snapshot{{Token: "old"}})
	b.Publish(Snapshot{{Token: "new"}, store.Record{Token: "x"}})

	snap := <-ch
	assert.Equal(t, "new", snap[0].Token)
	assert.Len(t, snap, 2)
}
