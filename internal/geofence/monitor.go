// ABOUTME: In-process spatial trigger subsystem that turns location updates into region transitions
// ABOUTME: Tracks inside/outside per region and delivers batched events to subscribers

package geofence

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/regionsync/internal/geo"
)

// ErrClosed is returned by operations on a closed Monitor.
var ErrClosed = errors.New("geofence monitor closed")

const defaultBufferSize = 64

// Subscription is a live stream of transition events.
type Subscription struct {
	ID     string
	Events <-chan Event
}

// Options configures a Monitor.
type Options struct {
	// BufferSize is the per-subscription channel capacity.
	BufferSize int
	// InitialTriggerEnter emits ENTER for a newly added region when the last
	// known location is already inside it.
	InitialTriggerEnter bool
	Now                 func() time.Time
	Logger              *slog.Logger
}

type monitored struct {
	region Region
	inside bool
}

// Monitor evaluates location updates against registered regions.
// Delivery blocks when a subscriber's buffer is full; events from separate
// calls are not ordered relative to each other.
type Monitor struct {
	mu          sync.Mutex
	regions     map[string]*monitored
	subscribers map[string]chan Event
	lastLoc     *geo.Location
	closed      bool

	// inflight tracks senders so Close can close channels safely.
	inflight sync.WaitGroup
	done     chan struct{}

	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(opts Options) *Monitor {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		regions:     make(map[string]*monitored),
		subscribers: make(map[string]chan Event),
		done:        make(chan struct{}),
		opts:        opts,
		now:         now,
		logger:      logger.With("component", "geofence"),
	}
}

// Subscribe opens a new event stream.
func (m *Monitor) Subscribe() (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	id := uuid.New().String()
	ch := make(chan Event, m.opts.BufferSize)
	m.subscribers[id] = ch

	m.logger.Debug("subscription created", "sub_id", id)
	return &Subscription{ID: id, Events: ch}, nil
}

// AddRegions starts monitoring regions. A region whose ID is already
// monitored has its geometry and trigger mask replaced and its state reset.
func (m *Monitor) AddRegions(ctx context.Context, regions []Region) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	for _, r := range regions {
		if err := r.Validate(); err != nil {
			m.mu.Unlock()
			return err
		}
	}

	var entered []string
	for _, r := range regions {
		mr := &monitored{region: r}
		if m.lastLoc != nil && r.Contains(*m.lastLoc) {
			mr.inside = true
			if m.opts.InitialTriggerEnter && r.TriggerOn.Has(KindEnter) {
				entered = append(entered, r.ID)
			}
		}
		m.regions[r.ID] = mr
		m.logger.Debug("region added", "region_id", r.ID, "radius_meters", r.RadiusMeters)
	}

	var events []Event
	if len(entered) > 0 {
		events = append(events, m.newEventLocked(KindEnter, entered, m.lastLoc))
	}
	targets, err := m.beginSendLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	return m.send(ctx, targets, events)
}

// RemoveRegions stops monitoring the given ids. Unknown ids are ignored.
func (m *Monitor) RemoveRegions(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if _, ok := m.regions[id]; ok {
			delete(m.regions, id)
			m.logger.Debug("region removed", "region_id", id)
		}
	}
}

// Regions returns the monitored regions ordered by id.
func (m *Monitor) Regions() []Region {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Region, 0, len(m.regions))
	for _, mr := range m.regions {
		out = append(out, mr.region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateLocation records a new device location and emits at most one EXIT
// event and one ENTER event covering every region whose boundary was crossed.
// The emitted events are returned.
func (m *Monitor) UpdateLocation(ctx context.Context, loc geo.Location) ([]Event, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	l := loc
	m.lastLoc = &l

	var entered, exited []string
	for id, mr := range m.regions {
		inside := mr.region.Contains(loc)
		if inside == mr.inside {
			continue
		}
		mr.inside = inside
		if inside && mr.region.TriggerOn.Has(KindEnter) {
			entered = append(entered, id)
		}
		if !inside && mr.region.TriggerOn.Has(KindExit) {
			exited = append(exited, id)
		}
	}

	var events []Event
	if len(exited) > 0 {
		events = append(events, m.newEventLocked(KindExit, exited, &l))
	}
	if len(entered) > 0 {
		events = append(events, m.newEventLocked(KindEnter, entered, &l))
	}
	targets, err := m.beginSendLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := m.send(ctx, targets, events); err != nil {
		return nil, err
	}
	return events, nil
}

// Deliver injects a raw platform event, as the platform would on a callback.
// Missing ID and ReceivedAt are filled in.
func (m *Monitor) Deliver(ctx context.Context, ev Event) error {
	m.mu.Lock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = m.now()
	}
	targets, err := m.beginSendLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	return m.send(ctx, targets, []Event{ev})
}

// Inside reports the monitor's current view of a region.
func (m *Monitor) Inside(regionID string) (inside, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mr, ok := m.regions[regionID]
	if !ok {
		return false, false
	}
	return mr.inside, true
}

// LastLocation returns the most recent location passed to UpdateLocation.
func (m *Monitor) LastLocation() (geo.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastLoc == nil {
		return geo.Location{}, false
	}
	return *m.lastLoc, true
}

// Close stops the monitor, waits for in-flight deliveries and closes every
// subscription channel.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.inflight.Wait()

	m.mu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()

	m.logger.Debug("monitor closed")
	return nil
}

func (m *Monitor) newEventLocked(kind Kind, regionIDs []string, loc *geo.Location) Event {
	slices.Sort(regionIDs)
	ev := Event{
		ID:         uuid.New().String(),
		Kind:       kind,
		RegionIDs:  regionIDs,
		ReceivedAt: m.now(),
	}
	if loc != nil {
		l := *loc
		ev.Location = &l
	}
	return ev
}

// beginSendLocked snapshots subscribers and registers an in-flight sender.
// The caller must call send, which releases the registration.
func (m *Monitor) beginSendLocked() ([]chan Event, error) {
	if m.closed {
		return nil, ErrClosed
	}
	targets := make([]chan Event, 0, len(m.subscribers))
	for _, ch := range m.subscribers {
		targets = append(targets, ch)
	}
	m.inflight.Add(1)
	return targets, nil
}

func (m *Monitor) send(ctx context.Context, targets []chan Event, events []Event) error {
	defer m.inflight.Done()

	for _, ev := range events {
		for _, ch := range targets {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			case <-m.done:
				return ErrClosed
			}
		}
		m.logger.Debug("transition delivered",
			"event_id", ev.ID,
			"kind", ev.Kind.String(),
			"regions", len(ev.RegionIDs))
	}
	return nil
}
