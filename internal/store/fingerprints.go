// ABOUTME: SQLite persistence for location fingerprints
// ABOUTME: Maps a quantized location key to the hash of the last applied record set

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetFingerprint returns the stored hash for key.
// Returns ErrNotFound if the key has never been written.
func (s *SQLiteStore) GetFingerprint(ctx context.Context, key string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM fingerprints WHERE location_key = ?`, key).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying fingerprint: %w", err)
	}
	return hash, nil
}

// PutFingerprint stores hash for key, replacing any previous value.
func (s *SQLiteStore) PutFingerprint(ctx context.Context, key, hash string) error {
	query := `INSERT OR REPLACE INTO fingerprints (location_key, hash, updated_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, key, hash, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("storing fingerprint: %w", err)
	}
	return nil
}
