// Package geo provides the spatial helpers used by cell aggregation:
// centroids, great-circle distances and EWKB point encoding.
package geo

import (
	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of every encoded geometry (WGS 84).
const SRID = 4326

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371000.0

// Point is a WGS 84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Centroid returns the arithmetic mean of pts. Cells are small enough that
// the planar mean is within metres of the spherical one.
func Centroid(pts []Point) (Point, bool) {
	if len(pts) == 0 {
		return Point{}, false
	}
	var lat, lon float64
	for _, p := range pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pts))
	return Point{Lat: lat / n, Lon: lon / n}, true
}

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Spread returns the largest distance from center to any of pts.
func Spread(center Point, pts []Point) float64 {
	var maxD float64
	for _, p := range pts {
		if d := DistanceMeters(center, p); d > maxD {
			maxD = d
		}
	}
	return maxD
}

// EncodePoint converts p to little-endian EWKB bytes with SRID 4326.
func EncodePoint(p Point) ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}
