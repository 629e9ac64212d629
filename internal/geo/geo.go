// ABOUTME: Geographic primitives shared by the geofence monitor and the sync engine
// ABOUTME: Location type, great-circle distance, and fingerprint-key quantization

package geo

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// EarthRadiusMeters is the mean earth radius used for haversine distances.
	EarthRadiusMeters = 6371008.8

	// MetersPerMile converts the fetch radius (miles) to region radii (meters).
	MetersPerMile = 1609.344
)

// Quantization parameters. Each coordinate is rendered with a fixed number of
// decimals and cut to a fixed width, so jitter below the kept precision maps to
// the same key. Large-magnitude coordinates keep fewer decimals.
const (
	quantizeDecimals = 7
	quantizeWidth    = 10
)

// Location is a WGS84 point.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat" toml:"lat"`
	Lon float64 `json:"lon" yaml:"lon" toml:"lon"`
}

// Validate reports whether the location is a usable coordinate pair.
func (l Location) Validate() error {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lon) || math.IsInf(l.Lat, 0) || math.IsInf(l.Lon, 0) {
		return fmt.Errorf("location is not finite: %v,%v", l.Lat, l.Lon)
	}
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude out of range: %v", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("longitude out of range: %v", l.Lon)
	}
	return nil
}

func (l Location) String() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lon, 'f', -1, 64)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Within reports whether p lies inside the circle of radiusMeters around center.
func Within(center, p Location, radiusMeters float64) bool {
	return Distance(center, p) <= radiusMeters
}

// Quantize collapses a location to the fixed-precision key used for fingerprints.
// (40.0, -73.0) becomes "40.0000000_-73.000000".
func Quantize(l Location) string {
	return quantizeCoord(l.Lat) + "_" + quantizeCoord(l.Lon)
}

func quantizeCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', quantizeDecimals, 64)
	if len(s) > quantizeWidth {
		s = s[:quantizeWidth]
	}
	return s
}
