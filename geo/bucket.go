package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"

	"safety-poll-service/models"
)

// earthRadiusMeters matches the mean radius used by the s2 library docs.
const earthRadiusMeters = 6371010.0

// DefaultResolutionDeg is the default grid cell size, roughly 1 km at the
// equator.
const DefaultResolutionDeg = 0.01

// BucketKey identifies one fixed-resolution grid cell. I indexes latitude
// rows, J longitude columns.
type BucketKey struct {
	I int
	J int
}

// String renders the key in its stable "i:j" form.
func (k BucketKey) String() string {
	return fmt.Sprintf("%d:%d", k.I, k.J)
}

// Grid is a fixed-resolution lat/lng partitioning. The zero value is not
// usable; construct with NewGrid.
type Grid struct {
	resolution float64
}

// NewGrid returns a grid with the given cell size in degrees. Non-positive
// resolutions fall back to the default.
func NewGrid(resolutionDeg float64) Grid {
	if resolutionDeg <= 0 {
		resolutionDeg = DefaultResolutionDeg
	}
	return Grid{resolution: resolutionDeg}
}

// Resolution returns the cell size in degrees.
func (g Grid) Resolution() float64 {
	return g.resolution
}

// BucketFor maps coordinates to their grid cell. Pure and deterministic:
// the same input always yields the same key, so the index can be rebuilt
// identically at any time.
func (g Grid) BucketFor(lat, lng float64) BucketKey {
	return BucketKey{
		I: int(math.Floor(lat / g.resolution)),
		J: int(math.Floor(lng / g.resolution)),
	}
}

// Centroid returns the center coordinates of a cell.
func (g Grid) Centroid(k BucketKey) (lat, lng float64) {
	lat = (float64(k.I) + 0.5) * g.resolution
	lng = (float64(k.J) + 0.5) * g.resolution
	return lat, lng
}

// CellRadiusMeters returns the half-diagonal of a cell in meters, the
// radius renderers should draw for an overlay point in this cell.
func (g Grid) CellRadiusMeters(k BucketKey) float64 {
	lat, lng := g.Centroid(k)
	center := s2.LatLngFromDegrees(lat, lng)
	corner := s2.LatLngFromDegrees(lat+g.resolution/2, lng+g.resolution/2)
	return center.Distance(corner).Radians() * earthRadiusMeters
}

// BucketsNear returns the (2*cells+1)^2 neighborhood around the cell
// containing the given coordinates. The caller passes an explicit cell
// count rather than a distance, keeping this O(1) in data size.
func (g Grid) BucketsNear(lat, lng float64, cells int) []BucketKey {
	if cells < 0 {
		cells = 0
	}
	center := g.BucketFor(lat, lng)
	keys := make([]BucketKey, 0, (2*cells+1)*(2*cells+1))
	for di := -cells; di <= cells; di++ {
		for dj := -cells; dj <= cells; dj++ {
			keys = append(keys, BucketKey{I: center.I + di, J: center.J + dj})
		}
	}
	return keys
}

// Intersects reports whether the cell's rectangle overlaps the viewport.
func (g Grid) Intersects(k BucketKey, vp models.ViewPort) bool {
	latLo := float64(k.I) * g.resolution
	latHi := latLo + g.resolution
	lngLo := float64(k.J) * g.resolution
	lngHi := lngLo + g.resolution
	return latHi >= vp.LatMin && latLo <= vp.LatMax &&
		lngHi >= vp.LonMin && lngLo <= vp.LonMax
}
