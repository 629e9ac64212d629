// ABOUTME: Tests for geographic primitives
// ABOUTME: Covers quantization keys, jitter tolerance, distances, and validation

package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize_ScenarioKey(t *testing.T) {
	assert.Equal(t, "40.0000000_-73.000000", Quantize(Location{Lat: 40.0, Lon: -73.0}))
}

func TestQuantize_ToleratesJitterBelowPrecision(t *testing.T) {
	a := Quantize(Location{Lat: 40.71277761, Lon: -74.00597012})
	b := Quantize(Location{Lat: 40.71277763, Lon: -74.00597049})
	assert.Equal(t, a, b)
}

func TestQuantize_DistinguishesNearbyPoints(t *testing.T) {
	a := Quantize(Location{Lat: 40.7127, Lon: -74.0059})
	b := Quantize(Location{Lat: 40.7128, Lon: -74.0059})
	assert.NotEqual(t, a, b)
}

func TestQuantize_WideLongitudeKeepsFewerDecimals(t *testing.T) {
	assert.Equal(t, "37.7749295_-122.41941", Quantize(Location{Lat: 37.7749295, Lon: -122.4194155}))
}

func TestDistance(t *testing.T) {
	nyc := Location{Lat: 40.7128, Lon: -74.0060}
	la := Location{Lat: 34.0522, Lon: -118.2437}

	d := Distance(nyc, la)
	assert.InDelta(t, 3_936_000, d, 10_000)
	assert.InDelta(t, d, Distance(la, nyc), 1e-6)
	assert.Zero(t, Distance(nyc, nyc))
}

func TestWithin(t *testing.T) {
	center := Location{Lat: 40.0, Lon: -73.0}

	// ~0.01 degrees of latitude is ~1.1km
	assert.True(t, Within(center, Location{Lat: 40.01, Lon: -73.0}, 1609))
	assert.False(t, Within(center, Location{Lat: 40.02, Lon: -73.0}, 1609))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Location{Lat: 90, Lon: -180}.Validate())
	assert.Error(t, Location{Lat: 91, Lon: 0}.Validate())
	assert.Error(t, Location{Lat: 0, Lon: 181}.Validate())
	assert.Error(t, Location{Lat: math.NaN(), Lon: 0}.Validate())
}
