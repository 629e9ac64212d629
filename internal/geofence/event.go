// ABOUTME: Transition event types emitted by the geofence monitor
// ABOUTME: Defines transition kinds, trigger masks, regions and raw platform events

package geofence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/regionsync/internal/geo"
)

// Kind is the direction of a boundary crossing.
type Kind int

const (
	KindUnknown Kind = iota
	KindEnter
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindEnter:
		return "enter"
	case KindExit:
		return "exit"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as "enter", "exit" or "unknown".
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts "enter" or "exit". Anything else decodes to KindUnknown.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		*k = KindUnknown
		return nil
	}
	*k = parsed
	return nil
}

// ParseKind parses "enter" or "exit" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enter":
		return KindEnter, nil
	case "exit":
		return KindExit, nil
	default:
		return KindUnknown, fmt.Errorf("unknown transition kind %q", s)
	}
}

// TriggerMask selects which transitions a region reports.
type TriggerMask uint8

const (
	TriggerEnter TriggerMask = 1 << iota
	TriggerExit

	TriggerAll = TriggerEnter | TriggerExit
)

// Has reports whether the mask includes transitions of kind k.
func (m TriggerMask) Has(k Kind) bool {
	switch k {
	case KindEnter:
		return m&TriggerEnter != 0
	case KindExit:
		return m&TriggerExit != 0
	default:
		return false
	}
}

// Region is a monitored circle.
type Region struct {
	ID           string       `json:"id"`
	Center       geo.Location `json:"center"`
	RadiusMeters float64      `json:"radius_meters"`
	TriggerOn    TriggerMask  `json:"trigger_on"`
}

// Validate checks that the region can be monitored.
func (r Region) Validate() error {
	if r.ID == "" {
		return errors.New("region id is required")
	}
	if r.RadiusMeters <= 0 {
		return fmt.Errorf("region %s: radius must be positive", r.ID)
	}
	if err := r.Center.Validate(); err != nil {
		return fmt.Errorf("region %s: %w", r.ID, err)
	}
	return nil
}

// Contains reports whether loc lies within the region.
func (r Region) Contains(loc geo.Location) bool {
	return geo.Within(r.Center, loc, r.RadiusMeters)
}

// Event is one platform notification. All regions in RegionIDs crossed their
// boundary in the same direction at Location. A non-zero ErrorCode marks a
// platform-side failure; such events carry no usable transition.
type Event struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	RegionIDs  []string      `json:"region_ids"`
	Location   *geo.Location `json:"location,omitempty"`
	ErrorCode  int           `json:"error_code,omitempty"`
	ReceivedAt time.Time     `json:"received_at"`
}
