// ABOUTME: Contract tests run against both SQLiteStore and MockStore
// ABOUTME: Covers upsert replacement, bookmark preservation, ordering and region state round-trips

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func testRecord(token, title string, fetchedAt time.Time) Record {
	return Record{
		Token:       token,
		OwnerID:     "store-1",
		OwnerName:   "Corner Shop",
		Title:       title,
		Description: strPtr("fresh bread"),
		Latitude:    f64Ptr(40.0),
		Longitude:   f64Ptr(-73.0),
		FetchedAt:   fetchedAt,
	}
}

func TestUpsertRecords_InsertAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.UnixMilli(1_700_000_000_000).UTC()

		require.NoError(t, s.UpsertRecords(ctx, []Record{testRecord("A", "t1", now)}))

		got, err := s.GetRecord(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, "t1", got.Title)
		assert.Equal(t, "Corner Shop", got.OwnerName)
		require.NotNil(t, got.Description)
		assert.Equal(t, "fresh bread", *got.Description)
		assert.Nil(t, got.ImageRef)
		assert.Nil(t, got.VideoRef)
		require.NotNil(t, got.Latitude)
		assert.InDelta(t, 40.0, *got.Latitude, 1e-9)
		assert.True(t, now.Equal(got.FetchedAt))
		assert.False(t, got.Bookmarked)
	})
}

func TestUpsertRecords_ReplacesByToken(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.UnixMilli(1_700_000_000_000).UTC()

		require.NoError(t, s.UpsertRecords(ctx, []Record{testRecord("A", "t1", now)}))

		replacement := testRecord("A", "t2", now.Add(time.Minute))
		replacement.Description = nil
		require.NoError(t, s.UpsertRecords(ctx, []Record{replacement}))

		all, err := s.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "t2", all[0].Title)
		assert.Nil(t, all[0].Description)
	})
}

func TestUpsertRecords_PreservesBookmark(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.UnixMilli(1_700_000_000_000).UTC()

		require.NoError(t, s.UpsertRecords(ctx, []Record{testRecord("A", "t1", now)}))

		got, err := s.GetRecord(ctx, "A")
		require.NoError(t, err)
		got.Bookmarked = true
		require.NoError(t, s.UpdateRecord(ctx, got))

		// A refetch carries Bookmarked=false from the server.
		require.NoError(t, s.UpsertRecords(ctx, []Record{testRecord("A", "t2", now.Add(time.Minute))}))

		got, err = s.GetRecord(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, "t2", got.Title)
		assert.True(t, got.Bookmarked)
	})
}

func TestUpsertRecords_Empty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertRecords(ctx, nil))

		all, err := s.ListRecords(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestUpdateRecord_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		r := testRecord("missing", "t", time.Now())
		err := s.UpdateRecord(context.Background(), &r)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetRecord_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetRecord(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.UnixMilli(1_700_000_000_000).UTC()

		require.NoError(t, s.UpsertRecords(ctx, []Record{
			testRecord("A", "a", now),
			testRecord("B", "b", now),
		}))

		require.NoError(t, s.DeleteRecord(ctx, "A"))
		// deleting an absent token is a no-op
		require.NoError(t, s.DeleteRecord(ctx, "A"))

		all, err := s.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "B", all[0].Token)
	})
}

func TestListRecords_OrderedByFetchedAtDesc(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.UnixMilli(1_700_000_000_000).UTC()

		require.NoError(t, s.UpsertRecords(ctx, []Record{
			testRecord("old", "o", base),
			testRecord("new", "n", base.Add(2*time.Hour)),
			testRecord("mid-b", "m", base.Add(time.Hour)),
			testRecord("mid-a", "m", base.Add(time.Hour)),
		}))

		all, err := s.ListRecords(ctx)
		require.NoError(t, err)

		tokens := make([]string, len(all))
		for i, r := range all {
			tokens[i] = r.Token
		}
		assert.Equal(t, []string{"new", "mid-a", "mid-b", "old"}, tokens)
	})
}

func TestRegionState_RoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		enteredAt := time.UnixMilli(1_700_000_123_000).UTC()

		_, err := s.GetRegionState(ctx, "store-1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.MarkEntered(ctx, "store-1", enteredAt))

		st, err := s.GetRegionState(ctx, "store-1")
		require.NoError(t, err)
		assert.True(t, st.IsInside)
		require.NotNil(t, st.LastEnterTimestamp)
		assert.True(t, enteredAt.Equal(*st.LastEnterTimestamp))

		require.NoError(t, s.MarkExited(ctx, "store-1"))

		st, err = s.GetRegionState(ctx, "store-1")
		require.NoError(t, err)
		assert.False(t, st.IsInside)
		assert.Nil(t, st.LastEnterTimestamp)
	})
}

func TestRegionState_ExitWithoutEnter(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.MarkExited(ctx, "never-entered"))

		st, err := s.GetRegionState(ctx, "never-entered")
		require.NoError(t, err)
		assert.False(t, st.IsInside)
	})
}

func TestListRegionStates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.MarkEntered(ctx, "b", time.Now()))
		require.NoError(t, s.MarkExited(ctx, "a"))

		states, err := s.ListRegionStates(ctx)
		require.NoError(t, err)
		require.Len(t, states, 2)
		assert.Equal(t, "a", states[0].RegionID)
		assert.False(t, states[0].IsInside)
		assert.Equal(t, "b", states[1].RegionID)
		assert.True(t, states[1].IsInside)
	})
}

func TestFingerprints(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetFingerprint(ctx, "40.0000000_-73.000000")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.PutFingerprint(ctx, "40.0000000_-73.000000", "H1"))
		require.NoError(t, s.PutFingerprint(ctx, "40.0000000_-73.000000", "H2"))

		got, err := s.GetFingerprint(ctx, "40.0000000_-73.000000")
		require.NoError(t, err)
		assert.Equal(t, "H2", got)
	})
}
