package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"safety-poll-service/models"
)

func TestBroadcastReportsEmptyIsNoop(t *testing.T) {
	hub := NewHub()
	hub.BroadcastReports(nil)

	select {
	case msg := <-hub.broadcast:
		t.Errorf("unexpected broadcast for empty batch: %s", msg)
	default:
	}
}

func TestBroadcastReports(t *testing.T) {
	hub := NewHub()
	now := time.Now().UTC()
	hub.BroadcastReports([]models.SafetyReport{
		{Seq: 11, ID: "a", Latitude: 18.52, Longitude: 73.85, IsSafe: true, SubmittedAt: now},
		{Seq: 12, ID: "b", Latitude: 18.53, Longitude: 73.86, IsSafe: false, SubmittedAt: now},
	})

	var raw []byte
	select {
	case raw = <-hub.broadcast:
	default:
		t.Fatal("expected a broadcast message")
	}

	var msg models.BroadcastMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("broadcast message not valid JSON: %v", err)
	}
	if msg.Type != "reports" {
		t.Errorf("expected type reports, got %q", msg.Type)
	}

	batch, _ := json.Marshal(msg.Data)
	var data models.ReportBatch
	if err := json.Unmarshal(batch, &data); err != nil {
		t.Fatalf("batch not valid JSON: %v", err)
	}
	if data.Count != 2 || data.FromSeq != 11 || data.ToSeq != 12 {
		t.Errorf("unexpected batch header: %+v", data)
	}

	if _, lastSeq := hub.GetStats(); lastSeq != 12 {
		t.Errorf("expected last broadcast seq 12, got %d", lastSeq)
	}
}
