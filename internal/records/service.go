// ABOUTME: Record service wraps the durable record cache with change notification
// ABOUTME: Every mutation republishes the full ordered record list to watchers

package records

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/regionsync/internal/store"
)

// Service owns all mutations of the record cache and keeps watchers current.
type Service struct {
	// mu serializes a mutation with the list it publishes, so watchers
	// never observe snapshots out of order.
	mu          sync.Mutex
	store       store.RecordStore
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewService creates a record service over the given store.
func NewService(s store.RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       s,
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "records"),
	}
}

// UpsertAll inserts or replaces records by token, preserving bookmarks.
func (s *Service) UpsertAll(ctx context.Context, recs []store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpsertRecords(ctx, recs); err != nil {
		return err
	}
	s.publishLocked(ctx)
	return nil
}

// Update replaces a single existing record in place.
func (s *Service) Update(ctx context.Context, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return err
	}
	s.publishLocked(ctx)
	return nil
}

// SetBookmarked flips the local-only bookmark flag of a record.
// Returns store.ErrNotFound if the token does not exist.
func (s *Service) SetBookmarked(ctx context.Context, token string, bookmarked bool) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.GetRecord(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec.Bookmarked == bookmarked {
		return rec, nil
	}

	rec.Bookmarked = bookmarked
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating bookmark: %w", err)
	}
	s.publishLocked(ctx)
	return rec, nil
}

// DeleteByToken removes a record. Unknown tokens are a no-op.
func (s *Service) DeleteByToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteRecord(ctx, token); err != nil {
		return err
	}
	s.publishLocked(ctx)
	return nil
}

// Get returns one record by token.
func (s *Service) Get(ctx context.Context, token string) (*store.Record, error) {
	return s.store.GetRecord(ctx, token)
}

// ListAll returns every record, most recently fetched first.
func (s *Service) ListAll(ctx context.Context) ([]store.Record, error) {
	return s.store.ListRecords(ctx)
}

// Watch returns a channel that first receives the current list and then a new
// list after every change. The channel closes when ctx is cancelled or the
// service is closed.
func (s *Service) Watch(ctx context.Context) (<-chan Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	ch, subID := s.broadcaster.Subscribe(ctx)
	s.broadcaster.SendTo(subID, current)
	return ch, nil
}

// Watchers returns the number of active watchers.
func (s *Service) Watchers() int {
	return s.broadcaster.Len()
}

// Close closes every watcher channel.
func (s *Service) Close() {
	s.broadcaster.Close()
}

func (s *Service) publishLocked(ctx context.Context) {
	if s.broadcaster.Len() == 0 {
		return
	}
	current, err := s.store.ListRecords(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("failed to list records for watchers", "error", err)
		return
	}
	s.broadcaster.Publish(current)
}
