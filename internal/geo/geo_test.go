package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestCentroid(t *testing.T) {
	t.Parallel()

	_, ok := Centroid(nil)
	assert.False(t, ok)

	c, ok := Centroid([]Point{{Lat: 38.90, Lon: -77.04}, {Lat: 38.92, Lon: -77.02}})
	require.True(t, ok)
	assert.InDelta(t, 38.91, c.Lat, 1e-9)
	assert.InDelta(t, -77.03, c.Lon, 1e-9)
}

func TestDistanceMeters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		a, b  Point
		want  float64
		delta float64
	}{
		{"same point", Point{38.9, -77.0}, Point{38.9, -77.0}, 0, 1e-6},
		// One degree of latitude is ~111.2 km on a 6371 km sphere.
		{"one degree latitude", Point{0, 0}, Point{1, 0}, 111195, 5},
		{"dc to nashville", Point{38.9072, -77.0369}, Point{36.1627, -86.7816}, 911250, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, DistanceMeters(tt.a, tt.b), tt.delta)
		})
	}
}

func TestSpread(t *testing.T) {
	t.Parallel()

	center := Point{0, 0}
	assert.Zero(t, Spread(center, nil))
	assert.InDelta(t, 2*111195.0, Spread(center, []Point{{1, 0}, {-2, 0}}), 10)
}

func TestEncodePoint(t *testing.T) {
	t.Parallel()

	data, err := EncodePoint(Point{Lat: 38.9072, Lon: -77.0369})
	require.NoError(t, err)
	// NDR byte order marker.
	assert.Equal(t, byte(0x01), data[0])

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID, pt.SRID())
	assert.InDelta(t, 38.9072, pt.Y(), 1e-12)
	assert.InDelta(t, -77.0369, pt.X(), 1e-12)
}
