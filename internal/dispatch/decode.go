// ABOUTME: Decodes raw platform events into per-region transitions
// ABOUTME: Malformed or errored events fail with ErrDecodeFailed and are dropped by the dispatcher

package dispatch

import (
	"errors"
	"fmt"

	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/geofence"
)

// ErrDecodeFailed marks an event that carries no usable transition.
var ErrDecodeFailed = errors.New("decode failed")

// Transition is one region's boundary crossing taken from an event.
type Transition struct {
	RegionID string
	Kind     geofence.Kind
	Location *geo.Location // always set for ENTER
}

// Decode splits ev into one transition per triggering region, in event order.
func Decode(ev geofence.Event) ([]Transition, error) {
	if ev.ErrorCode != 0 {
		return nil, fmt.Errorf("%w: platform error code %d", ErrDecodeFailed, ev.ErrorCode)
	}
	if ev.Kind != geofence.KindEnter && ev.Kind != geofence.KindExit {
		return nil, fmt.Errorf("%w: unsupported transition kind %s", ErrDecodeFailed, ev.Kind)
	}
	if len(ev.RegionIDs) == 0 {
		return nil, fmt.Errorf("%w: no triggering regions", ErrDecodeFailed)
	}

	var loc *geo.Location
	if ev.Location != nil {
		if err := ev.Location.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
		}
		l := *ev.Location
		loc = &l
	}
	if ev.Kind == geofence.KindEnter && loc == nil {
		return nil, fmt.Errorf("%w: enter without triggering location", ErrDecodeFailed)
	}

	out := make([]Transition, 0, len(ev.RegionIDs))
	for _, id := range ev.RegionIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty region id", ErrDecodeFailed)
		}
		out = append(out, Transition{RegionID: id, Kind: ev.Kind, Location: loc})
	}
	return out, nil
}
