package models

import (
	"time"
)

// SafetyReport is one community-submitted vote about whether a location
// feels safe. Reports are append-only: corrections are new reports.
type SafetyReport struct {
	Seq          int64     `json:"seq" db:"seq"`
	ID           string    `json:"id" db:"id"`
	Location     string    `json:"location" db:"location"`
	Latitude     float64   `json:"latitude" db:"latitude"`
	Longitude    float64   `json:"longitude" db:"longitude"`
	IsSafe       bool      `json:"is_safe" db:"is_safe"`
	Comment      string    `json:"comment,omitempty" db:"comment"`
	SubmitterRef string    `json:"submitter_ref,omitempty" db:"submitter_ref"`
	SubmittedAt  time.Time `json:"submitted_at" db:"submitted_at"`
}

// SubmitPollRequest is the payload of POST /api/safety-poll.
// Pointer fields distinguish "absent" from zero values during validation.
type SubmitPollRequest struct {
	Location  string   `json:"location"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	IsSafe    *bool    `json:"is_safe"`
	Comment   string   `json:"comment"`
}

// ListFilter restricts which reports ListReports returns.
type ListFilter struct {
	IsSafe *bool
	Since  *time.Time
	Until  *time.Time
	// Seqs restricts the listing to a known set of report sequence
	// numbers, typically the members of a geo bucket.
	Seqs []int64
}

// IndexRow is the minimal projection of a report needed to rebuild
// the geo-bucketing index.
type IndexRow struct {
	Seq       int64
	ID        string
	Latitude  float64
	Longitude float64
}

// ViewPort is a lat/lng bounding box, south-west to north-east.
type ViewPort struct {
	LatMin float64
	LonMin float64
	LatMax float64
	LonMax float64
}

// HeatmapPoint is one aggregated overlay point, one per non-empty bucket.
// Radius is in meters, derived from the bucket resolution.
type HeatmapPoint struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Radius     float64 `json:"radius"`
	RiskScore  float64 `json:"riskScore"`
	SampleSize int     `json:"sampleSize"`
}

// ReportBatch is a batch of reports pushed to websocket listeners.
type ReportBatch struct {
	Reports []SafetyReport `json:"reports"`
	Count   int            `json:"count"`
	FromSeq int64          `json:"from_seq"`
	ToSeq   int64          `json:"to_seq"`
}

// BroadcastMessage is the wire frame sent to websocket listeners.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	ConnectedClients int    `json:"connected_clients"`
	IndexedBuckets   int    `json:"indexed_buckets"`
}
