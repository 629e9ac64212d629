// ABOUTME: Store interfaces and data types for regionsync persistence
// ABOUTME: Defines Record, RegionState and the record/region/fingerprint store contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Record is a single synchronized item fetched for a location (an "ad").
// Token is the primary key and is stable across fetches.
type Record struct {
	Token       string
	OwnerID     string
	OwnerName   string
	Title       string
	Description *string
	ImageRef    *string
	VideoRef    *string
	Latitude    *float64
	Longitude   *float64
	Bookmarked  bool // local-only, survives resync
	FetchedAt   time.Time
}

// RegionState is the durable occupancy state of one monitored region.
type RegionState struct {
	RegionID           string
	IsInside           bool
	LastEnterTimestamp *time.Time // nil unless IsInside
}

// RecordStore is the durable keyed cache of fetched records.
type RecordStore interface {
	// UpsertRecords inserts or fully replaces each record by token. An existing
	// row keeps its Bookmarked flag; every other field is overwritten.
	UpsertRecords(ctx context.Context, records []Record) error

	// UpdateRecord replaces a single existing row in place.
	// Returns ErrNotFound if no row has the record's token.
	UpdateRecord(ctx context.Context, record *Record) error

	// GetRecord returns the row for token or ErrNotFound.
	GetRecord(ctx context.Context, token string) (*Record, error)

	// DeleteRecord removes the row for token. Deleting an absent token is a no-op.
	DeleteRecord(ctx context.Context, token string) error

	// ListRecords returns all rows ordered by FetchedAt descending, then token.
	ListRecords(ctx context.Context) ([]Record, error)
}

// RegionStateStore is the durable region-id -> occupancy mapping.
// All writes are full-row replacements.
type RegionStateStore interface {
	MarkEntered(ctx context.Context, regionID string, at time.Time) error
	MarkExited(ctx context.Context, regionID string) error
	GetRegionState(ctx context.Context, regionID string) (*RegionState, error)
	ListRegionStates(ctx context.Context) ([]RegionState, error)
}

// FingerprintStore maps a quantized location key to the hash of the record set
// last applied for it. Last write wins.
type FingerprintStore interface {
	// GetFingerprint returns ErrNotFound when the key was never synchronized.
	GetFingerprint(ctx context.Context, key string) (string, error)
	PutFingerprint(ctx context.Context, key, hash string) error
}

// Store combines every persistence contract used by the daemon.
type Store interface {
	RecordStore
	RegionStateStore
	FingerprintStore

	// Close releases any resources held by the store
	Close() error
}
