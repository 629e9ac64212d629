// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu           sync.RWMutex
	records      map[string]*Record      // keyed by token
	regionStates map[string]*RegionState // keyed by region ID
	fingerprints map[string]string       // keyed by location key

	upsertErr      error
	regionStateErr error
	fingerprintErr error
	upsertCalls    int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records:      make(map[string]*Record),
		regionStates: make(map[string]*RegionState),
		fingerprints: make(map[string]string),
	}
}

// SetUpsertError makes subsequent UpsertRecords calls fail with err (nil clears it).
func (m *MockStore) SetUpsertError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// SetRegionStateError makes subsequent MarkEntered/MarkExited calls fail with err.
func (m *MockStore) SetRegionStateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regionStateErr = err
}

// SetFingerprintError makes subsequent fingerprint reads and writes fail with err.
func (m *MockStore) SetFingerprintError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fingerprintErr = err
}

// UpsertCalls returns the number of successful UpsertRecords calls.
func (m *MockStore) UpsertCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upsertCalls
}

// UpsertRecords stores each record, keeping the bookmarked flag of existing rows.
func (m *MockStore) UpsertRecords(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}

	for i := range records {
		r := cloneRecord(&records[i])
		r.FetchedAt = r.FetchedAt.Truncate(time.Millisecond).UTC()
		if existing, ok := m.records[r.Token]; ok {
			r.Bookmarked = existing.Bookmarked
		}
		m.records[r.Token] = r
	}
	m.upsertCalls++
	return nil
}

// UpdateRecord replaces an existing record.
func (m *MockStore) UpdateRecord(ctx context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.Token]; !ok {
		return ErrNotFound
	}
	r := cloneRecord(record)
	r.FetchedAt = r.FetchedAt.Truncate(time.Millisecond).UTC()
	m.records[r.Token] = r
	return nil
}

// GetRecord retrieves a record by token.
func (m *MockStore) GetRecord(ctx context.Context, token string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[token]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

// DeleteRecord removes a record by token.
func (m *MockStore) DeleteRecord(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, token)
	return nil
}

// ListRecords returns all records, most recently fetched first.
func (m *MockStore) ListRecords(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, *cloneRecord(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].FetchedAt.Equal(result[j].FetchedAt) {
			return result[i].FetchedAt.After(result[j].FetchedAt)
		}
		return result[i].Token < result[j].Token
	})

	return result, nil
}

// MarkEntered records that regionID is occupied since at.
func (m *MockStore) MarkEntered(ctx context.Context, regionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.regionStateErr != nil {
		return m.regionStateErr
	}

	ts := at.Truncate(time.Millisecond).UTC()
	m.regionStates[regionID] = &RegionState{
		RegionID:           regionID,
		IsInside:           true,
		LastEnterTimestamp: &ts,
	}
	return nil
}

// MarkExited records that regionID is no longer occupied.
func (m *MockStore) MarkExited(ctx context.Context, regionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.regionStateErr != nil {
		return m.regionStateErr
	}

	m.regionStates[regionID] = &RegionState{RegionID: regionID}
	return nil
}

// GetRegionState retrieves the stored state for a region.
func (m *MockStore) GetRegionState(ctx context.Context, regionID string) (*RegionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.regionStates[regionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRegionState(st), nil
}

// ListRegionStates returns every stored region state ordered by region id.
func (m *MockStore) ListRegionStates(ctx context.Context) ([]RegionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]RegionState, 0, len(m.regionStates))
	for _, st := range m.regionStates {
		result = append(result, *cloneRegionState(st))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RegionID < result[j].RegionID
	})
	return result, nil
}

// GetFingerprint returns the stored hash for key.
func (m *MockStore) GetFingerprint(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fingerprintErr != nil {
		return "", m.fingerprintErr
	}
	hash, ok := m.fingerprints[key]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}

// PutFingerprint stores hash for key.
func (m *MockStore) PutFingerprint(ctx context.Context, key, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fingerprintErr != nil {
		return m.fingerprintErr
	}
	m.fingerprints[key] = hash
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

func cloneRecord(r *Record) *Record {
	c := *r
	c.Description = cloneString(r.Description)
	c.ImageRef = cloneString(r.ImageRef)
	c.VideoRef = cloneString(r.VideoRef)
	c.Latitude = cloneFloat(r.Latitude)
	c.Longitude = cloneFloat(r.Longitude)
	return &c
}

func cloneRegionState(st *RegionState) *RegionState {
	c := *st
	if st.LastEnterTimestamp != nil {
		ts := *st.LastEnterTimestamp
		c.LastEnterTimestamp = &ts
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
