// ABOUTME: Tests for the record service and its watch notifications
// ABOUTME: Uses the in-memory MockStore

package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/regionsync/internal/store"
)

func rec(token, title string, fetchedAt time.Time) store.Record {
	return store.Record{
		Token:     token,
		OwnerID:   "s1",
		OwnerName: "Shop",
		Title:     title,
		FetchedAt: fetchedAt,
	}
}

func recvSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func tokens(snap Snapshot) []string {
	out := make([]string, len(snap))
	for i, r := range snap {
		out[i] = r.Token
	}
	return out
}

func TestService_WatchReceivesInitialAndUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(store.NewMockStore(), nil)
	defer svc.Close()

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, svc.UpsertAll(ctx, []store.Record{rec("A", "a", now)}))

	ch, err := svc.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, tokens(recvSnapshot(t, ch)))

	require.NoError(t, svc.UpsertAll(ctx, []store.Record{rec("B", "b", now.Add(time.Second))}))
	assert.Equal(t, []string{"B", "A"}, tokens(recvSnapshot(t, ch)))

	require.NoError(t, svc.DeleteByToken(ctx, "A"))
	assert.Equal(t, []string{"B"}, tokens(recvSnapshot(t, ch)))
}

func TestService_SlowWatcherSeesLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(store.NewMockStore(), nil)
	defer svc.Close()

	ch, err := svc.Watch(ctx)
	require.NoError(t, err)

	now := time.UnixMilli(1_700_000_000_000)
	for i, tok := range []string{"A", "B", "C"} {
		require.NoError(t, svc.UpsertAll(ctx, []store.Record{rec(tok, tok, now.Add(time.Duration(i)*time.Second))}))
	}

	// Only the newest list is buffered.
	assert.Equal(t, []string{"C", "B", "A"}, tokens(recvSnapshot(t, ch)))
}

func TestService_SetBookmarked(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMockStore(), nil)
	defer svc.Close()

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, svc.UpsertAll(ctx, []store.Record{rec("A", "a", now)}))

	got, err := svc.SetBookmarked(ctx, "A", true)
	require.NoError(t, err)
	assert.True(t, got.Bookmarked)

	// Resync keeps the bookmark.
	require.NoError(t, svc.UpsertAll(ctx, []store.Record{rec("A", "a2", now.Add(time.Minute))}))
	stored, err := svc.Get(ctx, "A")
	require.NoError(t, err)
	assert.True(t, stored.Bookmarked)
	assert.Equal(t, "a2", stored.Title)

	_, err = svc.SetBookmarked(ctx, "missing", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMockStore(), nil)
	defer svc.Close()

	r := rec("A", "a", time.Now())
	assert.ErrorIs(t, svc.Update(ctx, &r), store.ErrNotFound)

	require.NoError(t, svc.UpsertAll(ctx, []store.Record{r}))
	r.Title = "renamed"
	require.NoError(t, svc.Update(ctx, &r))

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "renamed", all[0].Title)
}

func TestService_FailedUpsertDoesNotPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ms := store.NewMockStore()
	svc := NewService(ms, nil)
	defer svc.Close()

	ch, err := svc.Watch(ctx)
	require.NoError(t, err)
	recvSnapshot(t, ch)

	ms.SetUpsertError(assert.AnError)
	err = svc.UpsertAll(ctx, []store.Record{rec("A", "a", time.Now())})
	assert.ErrorIs(t, err, assert.AnError)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot %v", tokens(snap))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_WatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	svc := NewService(store.NewMockStore(), nil)
	defer svc.Close()

	ch, err := svc.Watch(ctx)
	require.NoError(t, err)
	recvSnapshot(t, ch)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return svc.Watchers() == 0 }, time.Second, 10*time.Millisecond)
}
