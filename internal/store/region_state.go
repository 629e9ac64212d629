// ABOUTME: SQLite persistence for per-region occupancy state
// ABOUTME: Full-row replacement writes for enter/exit transitions

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MarkEntered records that the device is inside regionID since at.
func (s *SQLiteStore) MarkEntered(ctx context.Context, regionID string, at time.Time) error {
	query := `INSERT OR REPLACE INTO region_state (region_id, is_inside, last_enter_at) VALUES (?, 1, ?)`
	if _, err := s.db.ExecContext(ctx, query, regionID, at.UnixMilli()); err != nil {
		return fmt.Errorf("marking region entered: %w", err)
	}
	return nil
}

// MarkExited records that the device is outside regionID. The enter timestamp is cleared.
func (s *SQLiteStore) MarkExited(ctx context.Context, regionID string) error {
	query := `INSERT OR REPLACE INTO region_state (region_id, is_inside, last_enter_at) VALUES (?, 0, NULL)`
	if _, err := s.db.ExecContext(ctx, query, regionID); err != nil {
		return fmt.Errorf("marking region exited: %w", err)
	}
	return nil
}

// GetRegionState retrieves the stored state for a region.
// Returns ErrNotFound if the region has never transitioned.
func (s *SQLiteStore) GetRegionState(ctx context.Context, regionID string) (*RegionState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT region_id, is_inside, last_enter_at FROM region_state WHERE region_id = ?`, regionID)

	st, err := scanRegionState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying region state: %w", err)
	}
	return st, nil
}

// ListRegionStates returns every stored region state ordered by region id.
func (s *SQLiteStore) ListRegionStates(ctx context.Context) ([]RegionState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id, is_inside, last_enter_at FROM region_state ORDER BY region_id`)
	if err != nil {
		return nil, fmt.Errorf("querying region states: %w", err)
	}
	defer rows.Close()

	states := []RegionState{}
	for rows.Next() {
		st, err := scanRegionState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning region state: %w", err)
		}
		states = append(states, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating region states: %w", err)
	}
	return states, nil
}

func scanRegionState(row rowScanner) (*RegionState, error) {
	var (
		st          RegionState
		isInside    int
		lastEnterAt sql.NullInt64
	)
	if err := row.Scan(&st.RegionID, &isInside, &lastEnterAt); err != nil {
		return nil, err
	}
	st.IsInside = isInside != 0
	if lastEnterAt.Valid {
		ts := time.UnixMilli(lastEnterAt.Int64).UTC()
		st.LastEnterTimestamp = &ts
	}
	return &st, nil
}
