// ABOUTME: Region registry that registers monitored circles with the spatial trigger subsystem
// ABOUTME: Checks location permission first and owns one lazily created subscription handle

package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/geofence"
	"github.com/2389/regionsync/internal/metrics"
)

// DefaultRadiusMeters is used when a registration omits the radius (one mile).
const DefaultRadiusMeters = 1609

// ErrPermissionDenied is returned by an Authorizer when the process may not
// use location triggers. Register treats it as a silent no-op.
var ErrPermissionDenied = errors.New("location trigger permission denied")

// Platform is the spatial trigger subsystem.
type Platform interface {
	Subscribe() (*geofence.Subscription, error)
	AddRegions(ctx context.Context, regions []geofence.Region) error
	RemoveRegions(ids []string)
	Regions() []geofence.Region
}

// Authorizer reports whether location triggers may be registered.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// StaticAuthorizer grants or denies permission unconditionally.
type StaticAuthorizer bool

// Authorize implements Authorizer.
func (a StaticAuthorizer) Authorize(context.Context) error {
	if !a {
		return ErrPermissionDenied
	}
	return nil
}

// Options configures a Registry.
type Options struct {
	Platform            Platform
	Authorizer          Authorizer
	DefaultRadiusMeters float64
	Metrics             *metrics.Metrics
	Logger              *slog.Logger
}

// Registry is the only writer of platform trigger subscriptions.
type Registry struct {
	platform      Platform
	auth          Authorizer
	defaultRadius float64
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu  sync.Mutex
	sub *geofence.Subscription
}

// NewRegistry creates a Registry. A nil Authorizer denies everything.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := opts.Authorizer
	if auth == nil {
		auth = StaticAuthorizer(false)
	}
	radius := opts.DefaultRadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	return &Registry{
		platform:      opts.Platform,
		auth:          auth,
		defaultRadius: radius,
		metrics:       opts.Metrics,
		logger:        logger.With("component", "region"),
	}
}

// Register starts monitoring a region, replacing the geometry of an existing
// registration with the same id. A zero radius or trigger mask takes the
// defaults. Without location permission it logs and returns nil having done
// nothing.
func (r *Registry) Register(ctx context.Context, reg geofence.Region) error {
	if err := r.auth.Authorize(ctx); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			r.metrics.RegistrationDenied()
			r.logger.Warn("skipping region registration without location permission",
				"region_id", reg.ID)
			return nil
		}
		return fmt.Errorf("checking location permission: %w", err)
	}

	if reg.RadiusMeters <= 0 {
		reg.RadiusMeters = r.defaultRadius
	}
	if reg.TriggerOn == 0 {
		reg.TriggerOn = geofence.TriggerAll
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	if _, err := r.subscription(); err != nil {
		return err
	}

	if err := r.platform.AddRegions(ctx, []geofence.Region{reg}); err != nil {
		return fmt.Errorf("registering region %s: %w", reg.ID, err)
	}

	r.logger.Info("region registered",
		"region_id", reg.ID,
		"center", reg.Center.String(),
		"radius_meters", reg.RadiusMeters)
	return nil
}

// RegisterAt is Register for a circle given as coordinates.
func (r *Registry) RegisterAt(ctx context.Context, id string, lat, lon, radiusMeters float64) error {
	return r.Register(ctx, geofence.Region{
		ID:           id,
		Center:       geo.Location{Lat: lat, Lon: lon},
		RadiusMeters: radiusMeters,
	})
}

// Unregister stops monitoring a region. Unknown ids are a no-op.
func (r *Registry) Unregister(regionID string) {
	r.platform.RemoveRegions([]string{regionID})
	r.logger.Debug("region unregistered", "region_id", regionID)
}

// Regions returns the monitored regions ordered by id.
func (r *Registry) Regions() []geofence.Region {
	return r.platform.Regions()
}

// Get returns a monitored region by id.
func (r *Registry) Get(regionID string) (geofence.Region, bool) {
	for _, reg := range r.platform.Regions() {
		if reg.ID == regionID {
			return reg, true
		}
	}
	return geofence.Region{}, false
}

// Events returns the transition stream of the registry's subscription,
// creating the subscription on first use.
func (r *Registry) Events() (<-chan geofence.Event, error) {
	sub, err := r.subscription()
	if err != nil {
		return nil, err
	}
	return sub.Events, nil
}

// subscription returns the cached handle, creating it exactly once.
func (r *Registry) subscription() (*geofence.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return r.sub, nil
	}

	sub, err := r.platform.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribing to transitions: %w", err)
	}
	r.sub = sub
	r.logger.Debug("transition subscription created", "sub_id", sub.ID)
	return sub, nil
}
