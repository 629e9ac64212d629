// ABOUTME: Transition dispatcher that runs a bounded worker pool over platform events
// ABOUTME: Processes the regions of one event sequentially and isolates per-region failures

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/regionsync/internal/dedupe"
	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/geofence"
	"github.com/2389/regionsync/internal/metrics"
	"github.com/2389/regionsync/internal/syncer"
)

const defaultWorkers = 4

// Syncer runs the sync engine for an entered region.
type Syncer interface {
	OnEnter(ctx context.Context, regionID string, loc geo.Location) (*syncer.Result, error)
}

// StateWriter persists region occupancy.
type StateWriter interface {
	MarkEntered(ctx context.Context, regionID string, at time.Time) error
	MarkExited(ctx context.Context, regionID string) error
}

// Config configures a Dispatcher.
type Config struct {
	Syncer  Syncer
	States  StateWriter
	Workers int
	// Dedupe drops events whose ID was already handled. Optional.
	Dedupe  *dedupe.Cache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Outcome is the result of one region's transition.
type Outcome struct {
	RegionID string
	Kind     geofence.Kind
	Err      error
}

// Report summarizes the handling of one event.
type Report struct {
	EventID   string
	Duplicate bool
	Outcomes  []Outcome
}

// Failed returns the number of regions whose handling failed.
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Dispatcher turns platform events into sync and state-store calls.
type Dispatcher struct {
	syncer  Syncer
	states  StateWriter
	workers int
	dedupe  *dedupe.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	lastLoc map[string]geo.Location // region -> last ENTER location
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		syncer:  cfg.Syncer,
		states:  cfg.States,
		workers: workers,
		dedupe:  cfg.Dedupe,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "dispatch"),
		now:     now,
		lastLoc: make(map[string]geo.Location),
	}
}

// Run consumes events with a fixed pool of workers until events is closed or
// ctx is cancelled. Events already taken by a worker are finished even after
// cancellation.
func (d *Dispatcher) Run(ctx context.Context, events <-chan geofence.Event) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < d.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if _, err := d.HandleEvent(gctx, ev); err != nil {
						d.logger.Warn("dropped transition event",
							"worker", worker,
							"event_id", ev.ID,
							"error", err)
					}
				}
			}
		})
	}

	d.logger.Info("dispatcher started", "workers", d.workers)
	err := g.Wait()
	d.logger.Info("dispatcher stopped")
	return err
}

// HandleEvent processes one event. Regions are handled in order, each to
// completion, and a failure in one region does not stop the rest. The error
// is non-nil only when the whole event was dropped as undecodable.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev geofence.Event) (*Report, error) {
	d.metrics.EventReceived()
	report := &Report{EventID: ev.ID}

	if ev.ID != "" && d.dedupe != nil && d.dedupe.CheckAndMark(ev.ID) {
		d.metrics.EventDropped("duplicate")
		d.logger.Debug("ignoring duplicate event", "event_id", ev.ID)
		report.Duplicate = true
		return report, nil
	}

	transitions, err := Decode(ev)
	if err != nil {
		d.metrics.EventDropped("decode")
		return report, err
	}

	// Handlers run to completion once started.
	hctx := context.WithoutCancel(ctx)

	for _, tr := range transitions {
		err := d.handleIsolated(hctx, tr)
		d.metrics.TransitionHandled(tr.Kind.String(), err)
		if err != nil {
			d.logger.Error("transition failed",
				"event_id", ev.ID,
				"region_id", tr.RegionID,
				"kind", tr.Kind.String(),
				"error", err)
		}
		report.Outcomes = append(report.Outcomes, Outcome{
			RegionID: tr.RegionID,
			Kind:     tr.Kind,
			Err:      err,
		})
	}

	return report, nil
}

// HandleTransition applies one region transition: ENTER syncs then marks the
// region entered, EXIT only marks it exited.
func (d *Dispatcher) HandleTransition(ctx context.Context, tr Transition) error {
	switch tr.Kind {
	case geofence.KindEnter:
		if tr.Location == nil {
			return fmt.Errorf("%w: enter without triggering location", ErrDecodeFailed)
		}
		d.rememberLocation(tr.RegionID, *tr.Location)

		if _, err := d.syncer.OnEnter(ctx, tr.RegionID, *tr.Location); err != nil {
			return err
		}
		if err := d.states.MarkEntered(ctx, tr.RegionID, d.now()); err != nil {
			return fmt.Errorf("%w: marking entered: %w", syncer.ErrStoreFailed, err)
		}
		return nil

	case geofence.KindExit:
		if err := d.states.MarkExited(ctx, tr.RegionID); err != nil {
			return fmt.Errorf("%w: marking exited: %w", syncer.ErrStoreFailed, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unsupported transition kind %s", ErrDecodeFailed, tr.Kind)
	}
}

// LastLocation returns the triggering location of the most recent ENTER for a region.
func (d *Dispatcher) LastLocation(regionID string) (geo.Location, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	loc, ok := d.lastLoc[regionID]
	return loc, ok
}

func (d *Dispatcher) rememberLocation(regionID string, loc geo.Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastLoc[regionID] = loc
}

// handleIsolated converts a panic in one region's handler into an error.
func (d *Dispatcher) handleIsolated(ctx context.Context, tr Transition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling region %s: %v", tr.RegionID, r)
		}
	}()
	return d.HandleTransition(ctx, tr)
}
