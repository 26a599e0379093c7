package aggregate

import (
	"context"
	"time"

	"safety-poll-service/geo"
	"safety-poll-service/models"
)

// ReportSource is the slice of the report store the engine reads from.
// Aggregates are computed from stored reports on every read; they are
// never hand-maintained.
type ReportSource interface {
	GetReportsBySeqs(ctx context.Context, seqs []int64) ([]models.SafetyReport, error)
}

// BucketAggregate is the derived view of one bucket. RiskScore is nil when
// the bucket has no votes: "no data" must stay distinct from "confirmed
// safe".
type BucketAggregate struct {
	Bucket      string     `json:"bucket"`
	SafeVotes   int        `json:"safe_votes"`
	UnsafeVotes int        `json:"unsafe_votes"`
	RiskScore   *float64   `json:"risk_score"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// SampleSize returns the number of votes contributing to the aggregate.
func (a BucketAggregate) SampleSize() int {
	return a.SafeVotes + a.UnsafeVotes
}

// Engine computes bucket aggregates and heatmap overlays on demand from
// the report store, using the geo index only to locate report references.
type Engine struct {
	store ReportSource
	index *geo.Index

	// window limits heatmap aggregation to recent reports; zero means
	// no recency window.
	window time.Duration
	now    func() time.Time
}

// NewEngine creates an engine over the given store and index. windowDays
// bounds heatmap aggregation to the last N days (0 disables the window).
func NewEngine(store ReportSource, index *geo.Index, windowDays int) *Engine {
	return &Engine{
		store:  store,
		index:  index,
		window: time.Duration(windowDays) * 24 * time.Hour,
		now:    time.Now,
	}
}

// AggregateFor tallies the reports currently referenced by the given
// bucket. The result is a pure function of the stored reports.
func (e *Engine) AggregateFor(ctx context.Context, key geo.BucketKey) (BucketAggregate, error) {
	refs := e.index.RefsFor(key)
	reports, err := e.store.GetReportsBySeqs(ctx, seqsOf(refs))
	if err != nil {
		return BucketAggregate{}, err
	}
	return tally(key, reports), nil
}

// HeatmapOverlay emits one point per non-empty bucket intersecting the
// viewport. Buckets whose reports all fall outside the recency window are
// omitted, as are buckets with no reports at all.
func (e *Engine) HeatmapOverlay(ctx context.Context, vp models.ViewPort) ([]models.HeatmapPoint, error) {
	grid := e.index.Grid()
	keys := e.index.KeysInViewport(vp)

	var seqs []int64
	for _, key := range keys {
		for _, ref := range e.index.RefsFor(key) {
			seqs = append(seqs, ref.Seq)
		}
	}

	reports, err := e.store.GetReportsBySeqs(ctx, seqs)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if e.window > 0 {
		cutoff = e.now().Add(-e.window)
	}

	byBucket := make(map[geo.BucketKey][]models.SafetyReport)
	for _, r := range reports {
		if !cutoff.IsZero() && r.SubmittedAt.Before(cutoff) {
			continue
		}
		key := grid.BucketFor(r.Latitude, r.Longitude)
		byBucket[key] = append(byBucket[key], r)
	}

	points := make([]models.HeatmapPoint, 0, len(byBucket))
	for _, key := range keys {
		agg := tally(key, byBucket[key])
		if agg.RiskScore == nil {
			continue
		}
		lat, lng := grid.Centroid(key)
		points = append(points, models.HeatmapPoint{
			Latitude:   lat,
			Longitude:  lng,
			Radius:     grid.CellRadiusMeters(key),
			RiskScore:  *agg.RiskScore,
			SampleSize: agg.SampleSize(),
		})
	}
	return points, nil
}

func tally(key geo.BucketKey, reports []models.SafetyReport) BucketAggregate {
	agg := BucketAggregate{Bucket: key.String()}
	for _, r := range reports {
		if r.IsSafe {
			agg.SafeVotes++
		} else {
			agg.UnsafeVotes++
		}
		if agg.LastUpdated == nil || r.SubmittedAt.After(*agg.LastUpdated) {
			at := r.SubmittedAt
			agg.LastUpdated = &at
		}
	}
	if total := agg.SafeVotes + agg.UnsafeVotes; total > 0 {
		score := float64(agg.UnsafeVotes) / float64(total)
		agg.RiskScore = &score
	}
	return agg
}

func seqsOf(refs []geo.Ref) []int64 {
	seqs := make([]int64, 0, len(refs))
	for _, ref := range refs {
		seqs = append(seqs, ref.Seq)
	}
	return seqs
}
