// ABOUTME: Sync engine that fetches records for a location and applies them only when they changed
// ABOUTME: Compares the effective hash against the fingerprint stored for the quantized location

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/regionsync/internal/fetch"
	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/metrics"
	"github.com/2389/regionsync/internal/store"
)

var (
	// ErrFetchFailed wraps any error from the remote fetch collaborator.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrStoreFailed wraps any error from the record or fingerprint store.
	ErrStoreFailed = errors.New("store failed")
)

// Fetcher is the remote fetch collaborator.
type Fetcher interface {
	FetchNearby(ctx context.Context, loc geo.Location, radiusMiles float64) (*fetch.Result, error)
}

// RecordWriter applies a fetched record set to the local cache.
type RecordWriter interface {
	UpsertAll(ctx context.Context, records []store.Record) error
}

// Result describes one OnEnter run.
type Result struct {
	RegionID string
	Key      string // quantized location key
	Hash     string // effective hash of the fetched set
	Applied  bool   // false when the fingerprint already matched
	Records  int
}

// Config configures an Engine.
type Config struct {
	Fetcher      Fetcher
	Records      RecordWriter
	Fingerprints store.FingerprintStore
	RadiusMiles  float64
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Engine synchronizes the record cache for locations that were entered.
type Engine struct {
	fetcher      Fetcher
	records      RecordWriter
	fingerprints store.FingerprintStore
	radiusMiles  float64
	locks        *keyedMutex
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	radius := cfg.RadiusMiles
	if radius <= 0 {
		radius = fetch.DefaultRadiusMiles
	}
	return &Engine{
		fetcher:      cfg.Fetcher,
		records:      cfg.Records,
		fingerprints: cfg.Fingerprints,
		radiusMiles:  radius,
		locks:        newKeyedMutex(),
		metrics:      cfg.Metrics,
		logger:       logger.With("component", "syncer"),
	}
}

// OnEnter fetches the record set around loc and writes it to the cache unless
// the last set applied for the same quantized location had the same hash.
//
// Calls resolving to the same quantized key are serialized for the whole
// fetch-compare-write sequence. Records are written before the fingerprint.
func (e *Engine) OnEnter(ctx context.Context, regionID string, loc geo.Location) (*Result, error) {
	key := geo.Quantize(loc)

	unlock := e.locks.Lock(key)
	defer unlock()

	start := time.Now()
	fetched, err := e.fetcher.FetchNearby(ctx, loc, e.radiusMiles)
	e.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		e.metrics.SyncOutcome(metrics.SyncFailed, 0)
		return nil, fmt.Errorf("%w: region %s: %w", ErrFetchFailed, regionID, err)
	}

	res := &Result{
		RegionID: regionID,
		Key:      key,
		Hash:     EffectiveHash(fetched),
		Records:  len(fetched.Records),
	}

	lastHash, err := e.fingerprints.GetFingerprint(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.metrics.SyncOutcome(metrics.SyncFailed, 0)
		return nil, fmt.Errorf("%w: reading fingerprint %s: %w", ErrStoreFailed, key, err)
	}

	if err == nil && lastHash == res.Hash {
		e.metrics.SyncOutcome(metrics.SyncSkipped, res.Records)
		e.logger.Debug("record set unchanged, skipping write",
			"region_id", regionID,
			"key", key,
			"hash", res.Hash)
		return res, nil
	}

	if err := e.records.UpsertAll(ctx, fetched.Records); err != nil {
		e.metrics.SyncOutcome(metrics.SyncFailed, 0)
		return nil, fmt.Errorf("%w: writing records: %w", ErrStoreFailed, err)
	}

	if err := e.fingerprints.PutFingerprint(ctx, key, res.Hash); err != nil {
		e.metrics.SyncOutcome(metrics.SyncFailed, 0)
		return nil, fmt.Errorf("%w: writing fingerprint %s: %w", ErrStoreFailed, key, err)
	}

	res.Applied = true
	e.metrics.SyncOutcome(metrics.SyncApplied, res.Records)
	e.logger.Info("applied record set",
		"region_id", regionID,
		"key", key,
		"hash", res.Hash,
		"records", res.Records)
	return res, nil
}
