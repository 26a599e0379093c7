package geo

import (
	"context"
	"sort"
	"sync"

	"github.com/apex/log"

	"safety-poll-service/models"
)

// Ref is a reference into the report store. The index never holds report
// contents; the store remains the single system of record and the index
// can always be rebuilt from it.
type Ref struct {
	Seq int64
	ID  string
}

// RefSource is the slice of the report store the index needs for a rebuild.
type RefSource interface {
	ListIndexRows(ctx context.Context) ([]models.IndexRow, error)
}

// Index associates geo buckets with the reports falling in them.
// Concurrent readers, serialized writers.
type Index struct {
	grid Grid

	mu      sync.RWMutex
	buckets map[BucketKey][]Ref
}

// NewIndex creates an empty index over a grid with the given resolution.
func NewIndex(resolutionDeg float64) *Index {
	return &Index{
		grid:    NewGrid(resolutionDeg),
		buckets: make(map[BucketKey][]Ref),
	}
}

// Grid returns the partitioning this index is built on.
func (ix *Index) Grid() Grid {
	return ix.grid
}

// Add appends a report reference to the bucket its coordinates fall into.
func (ix *Index) Add(lat, lng float64, ref Ref) {
	key := ix.grid.BucketFor(lat, lng)
	ix.mu.Lock()
	ix.buckets[key] = append(ix.buckets[key], ref)
	ix.mu.Unlock()
}

// RefsFor returns a copy of the references in the given bucket. An unknown
// bucket simply has no references.
func (ix *Index) RefsFor(key BucketKey) []Ref {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	refs := ix.buckets[key]
	out := make([]Ref, len(refs))
	copy(out, refs)
	return out
}

// KeysInViewport returns the keys of all non-empty buckets whose cell
// intersects the viewport, in deterministic order.
func (ix *Index) KeysInViewport(vp models.ViewPort) []BucketKey {
	ix.mu.RLock()
	keys := make([]BucketKey, 0)
	for key, refs := range ix.buckets {
		if len(refs) == 0 {
			continue
		}
		if ix.grid.Intersects(key, vp) {
			keys = append(keys, key)
		}
	}
	ix.mu.RUnlock()

	sort.Slice(keys, func(a, b int) bool {
		if keys[a].I != keys[b].I {
			return keys[a].I < keys[b].I
		}
		return keys[a].J < keys[b].J
	})
	return keys
}

// Len returns the number of non-empty buckets.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, refs := range ix.buckets {
		if len(refs) > 0 {
			n++
		}
	}
	return n
}

// RebuildFromStore clears the index and repopulates it by scanning the
// report store. Idempotent: running it twice with no writes in between
// produces identical contents.
func (ix *Index) RebuildFromStore(ctx context.Context, src RefSource) error {
	rows, err := src.ListIndexRows(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[BucketKey][]Ref, len(rows))
	for _, row := range rows {
		key := ix.grid.BucketFor(row.Latitude, row.Longitude)
		fresh[key] = append(fresh[key], Ref{Seq: row.Seq, ID: row.ID})
	}

	ix.mu.Lock()
	ix.buckets = fresh
	ix.mu.Unlock()

	log.Infof("Geo index rebuilt: %d reports in %d buckets", len(rows), len(fresh))
	return nil
}
