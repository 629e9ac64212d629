// ABOUTME: SQLite persistence for fetched records keyed by token
// ABOUTME: Implements batch upsert that keeps the local bookmark flag, plus CRUD and ordered listing

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordColumns = `token, owner_id, owner_name, title, description, image_ref, video_ref,
	latitude, longitude, bookmarked, fetched_at`

// UpsertRecords inserts or replaces each record by token in a single transaction.
// The bookmarked column of an existing row is left untouched.
func (s *SQLiteStore) UpsertRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			owner_id = excluded.owner_id,
			owner_name = excluded.owner_name,
			title = excluded.title,
			description = excluded.description,
			image_ref = excluded.image_ref,
			video_ref = excluded.video_ref,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if r.Token == "" {
			return fmt.Errorf("record %d: empty token", i)
		}
		_, err := stmt.ExecContext(ctx,
			r.Token,
			r.OwnerID,
			r.OwnerName,
			r.Title,
			nullStringPtr(r.Description),
			nullStringPtr(r.ImageRef),
			nullStringPtr(r.VideoRef),
			nullFloatPtr(r.Latitude),
			nullFloatPtr(r.Longitude),
			boolToInt(r.Bookmarked),
			r.FetchedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upserting record %s: %w", r.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}

	s.logger.Debug("upserted records", "count", len(records))
	return nil
}

// UpdateRecord replaces every column of an existing record, including bookmarked.
// Returns ErrNotFound if the token does not exist.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, r *Record) error {
	query := `
		UPDATE records SET
			owner_id = ?, owner_name = ?, title = ?, description = ?, image_ref = ?,
			video_ref = ?, latitude = ?, longitude = ?, bookmarked = ?, fetched_at = ?
		WHERE token = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		r.OwnerID,
		r.OwnerName,
		r.Title,
		nullStringPtr(r.Description),
		nullStringPtr(r.ImageRef),
		nullStringPtr(r.VideoRef),
		nullFloatPtr(r.Latitude),
		nullFloatPtr(r.Longitude),
		boolToInt(r.Bookmarked),
		r.FetchedAt.UnixMilli(),
		r.Token,
	)
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetRecord retrieves a record by token.
// Returns ErrNotFound if the record doesn't exist.
func (s *SQLiteStore) GetRecord(ctx context.Context, token string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE token = ?`, token)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}

	return r, nil
}

// DeleteRecord removes a record by token. Absent tokens are ignored.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// ListRecords returns all records, most recently fetched first.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY fetched_at DESC, token ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r           Record
		description sql.NullString
		imageRef    sql.NullString
		videoRef    sql.NullString
		latitude    sql.NullFloat64
		longitude   sql.NullFloat64
		bookmarked  int
		fetchedAt   int64
	)

	err := row.Scan(
		&r.Token,
		&r.OwnerID,
		&r.OwnerName,
		&r.Title,
		&description,
		&imageRef,
		&videoRef,
		&latitude,
		&longitude,
		&bookmarked,
		&fetchedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Description = stringPtr(description)
	r.ImageRef = stringPtr(imageRef)
	r.VideoRef = stringPtr(videoRef)
	r.Latitude = floatPtr(latitude)
	r.Longitude = floatPtr(longitude)
	r.Bookmarked = bookmarked != 0
	r.FetchedAt = time.UnixMilli(fetchedAt).UTC()

	return &r, nil
}
