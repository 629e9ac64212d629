// ABOUTME: Tests for platform event decoding
// ABOUTME: Table-driven over valid and malformed events

package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/regionsync/internal/geo"
	"github.com/2389/regionsync/internal/geofence"
)

func TestDecode(t *testing.T) {
	loc := &geo.Location{Lat: 40, Lon: -73}

	tests := []struct {
		name    string
		event   geofence.Event
		want    []Transition
		wantErr bool
	}{
		{
			name:  "enter with two regions",
			event: geofence.Event{Kind: geofence.KindEnter, RegionIDs: []string{"a", "b"}, Location: loc},
			want: []Transition{
				{RegionID: "a", Kind: geofence.KindEnter, Location: loc},
				{RegionID: "b", Kind: geofence.KindEnter, Location: loc},
			},
		},
		{
			name:  "exit without location",
			event: geofence.Event{Kind: geofence.KindExit, RegionIDs: []string{"a"}},
			want:  []Transition{{RegionID: "a", Kind: geofence.KindExit}},
		},
		{
			name:    "platform error",
			event:   geofence.Event{Kind: geofence.KindEnter, RegionIDs: []string{"a"}, Location: loc, ErrorCode: 1000},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			event:   geofence.Event{Kind: geofence.KindUnknown, RegionIDs: []string{"a"}, Location: loc},
			wantErr: true,
		},
		{
			name:    "no regions",
			event:   geofence.Event{Kind: geofence.KindEnter, Location: loc},
			wantErr: true,
		},
		{
			name:    "enter without location",
			event:   geofence.Event{Kind: geofence.KindEnter, RegionIDs: []string{"a"}},
			wantErr: true,
		},
		{
			name:    "invalid location",
			event:   geofence.Event{Kind: geofence.KindEnter, RegionIDs: []string{"a"}, Location: &geo.Location{Lat: 120}},
			wantErr: true,
		},
		{
			name:    "empty region id",
			event:   geofence.Event{Kind: geofence.KindExit, RegionIDs: []string{"a", ""}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecodeFailed)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
