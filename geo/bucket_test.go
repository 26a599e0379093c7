package geo

import (
	"testing"

	"safety-poll-service/models"
)

func TestBucketForDeterministic(t *testing.T) {
	g := NewGrid(0.01)

	coords := []struct {
		lat, lng float64
	}{
		{18.5204, 73.8567},
		{0, 0},
		{-33.8688, 151.2093},
		{89.9999, -179.9999},
		{-90, -180},
		{90, 180},
	}

	for _, c := range coords {
		k1 := g.BucketFor(c.lat, c.lng)
		k2 := g.BucketFor(c.lat, c.lng)
		if k1 != k2 {
			t.Errorf("BucketFor(%f, %f) not deterministic: %v != %v", c.lat, c.lng, k1, k2)
		}
	}
}

func TestBucketForFloors(t *testing.T) {
	g := NewGrid(0.01)

	testCases := []struct {
		name     string
		lat, lng float64
		want     BucketKey
	}{
		{"pune fc road", 18.5204, 73.8567, BucketKey{I: 1852, J: 7385}},
		{"origin", 0, 0, BucketKey{I: 0, J: 0}},
		{"negative floors toward minus infinity", -0.001, -0.001, BucketKey{I: -1, J: -1}},
		{"southern hemisphere", -33.8688, 151.2093, BucketKey{I: -3387, J: 15120}},
	}

	for _, tc := range testCases {
		if got := g.BucketFor(tc.lat, tc.lng); got != tc.want {
			t.Errorf("%s: BucketFor(%f, %f) = %v, want %v", tc.name, tc.lat, tc.lng, got, tc.want)
		}
	}
}

func TestCentroid(t *testing.T) {
	g := NewGrid(0.01)
	key := g.BucketFor(18.5204, 73.8567)
	lat, lng := g.Centroid(key)

	// Centroid must land back in the same cell.
	if g.BucketFor(lat, lng) != key {
		t.Errorf("centroid (%f, %f) falls outside its own cell %v", lat, lng, key)
	}
	if lat < 18.52 || lat >= 18.53 || lng < 73.85 || lng >= 73.86 {
		t.Errorf("centroid (%f, %f) outside expected cell bounds", lat, lng)
	}
}

func TestCellRadiusMeters(t *testing.T) {
	g := NewGrid(0.01)
	key := g.BucketFor(18.5204, 73.8567)
	r := g.CellRadiusMeters(key)

	// Half-diagonal of a ~1.1km cell: several hundred meters.
	if r < 300 || r > 1200 {
		t.Errorf("CellRadiusMeters = %f, want a few hundred meters", r)
	}
}

func TestBucketsNear(t *testing.T) {
	g := NewGrid(0.01)

	testCases := []struct {
		cells int
		want  int
	}{
		{0, 1},
		{1, 9},
		{2, 25},
		{-3, 1},
	}

	for _, tc := range testCases {
		keys := g.BucketsNear(18.5204, 73.8567, tc.cells)
		if len(keys) != tc.want {
			t.Errorf("BucketsNear(cells=%d) returned %d keys, want %d", tc.cells, len(keys), tc.want)
		}
		seen := make(map[BucketKey]bool)
		for _, k := range keys {
			if seen[k] {
				t.Errorf("BucketsNear(cells=%d) returned duplicate key %v", tc.cells, k)
			}
			seen[k] = true
		}
		if !seen[g.BucketFor(18.5204, 73.8567)] {
			t.Errorf("BucketsNear(cells=%d) missing the center cell", tc.cells)
		}
	}
}

func TestIntersects(t *testing.T) {
	g := NewGrid(0.01)
	key := g.BucketFor(18.5204, 73.8567)

	inside := models.ViewPort{LatMin: 18.0, LonMin: 73.0, LatMax: 19.0, LonMax: 74.0}
	if !g.Intersects(key, inside) {
		t.Errorf("cell %v should intersect enclosing viewport", key)
	}

	outside := models.ViewPort{LatMin: 40.0, LonMin: -75.0, LatMax: 41.0, LonMax: -74.0}
	if g.Intersects(key, outside) {
		t.Errorf("cell %v should not intersect a distant viewport", key)
	}

	// Viewport touching only the cell edge still counts as intersecting.
	edge := models.ViewPort{LatMin: 18.53, LonMin: 73.86, LatMax: 19.0, LonMax: 74.0}
	if !g.Intersects(key, edge) {
		t.Errorf("cell %v should intersect a viewport touching its edge", key)
	}
}

func TestNewGridFallsBackOnBadResolution(t *testing.T) {
	g := NewGrid(0)
	if g.Resolution() != DefaultResolutionDeg {
		t.Errorf("Resolution() = %f, want default %f", g.Resolution(), DefaultResolutionDeg)
	}
}
