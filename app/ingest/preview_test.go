package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

func TestPreviewSamples(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	venue := &fakeAdapter{id: "venue", name: "The Venue", records: []event.RawRecord{
		record("Jazz Trio", daysFromNow(2)),
		{Title: "Undated", SourceURL: "https://venue.example.com/undated", StartAt: event.Text("TBA")},
		record("Poetry Night", daysFromNow(3)),
	}}

	result, err := orchestrator.Preview(context.Background(), venue, 2, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if result.TotalFound != 3 {
		t.Errorf("Expected 3 found, got %d", result.TotalFound)
	}
	if len(result.Samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(result.Samples))
	}

	if result.Samples[0].Normalized == nil || result.Samples[0].Normalized.SourceName != "The Venue" {
		t.Errorf("Expected normalized first sample, got %+v", result.Samples[0])
	}
	if result.Samples[1].Normalized != nil || result.Samples[1].Error == "" {
		t.Errorf("Expected second sample to carry its error, got %+v", result.Samples[1])
	}
	if result.Samples[1].Raw.Title != "Undated" {
		t.Errorf("Expected raw record in sample, got '%s'", result.Samples[1].Raw.Title)
	}
}

func TestPreviewAdapterFailure(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	_, err := orchestrator.Preview(context.Background(), &fakeAdapter{id: "down", fetchErr: errors.New("HTTP 500")}, 5, time.Second)
	if err == nil {
		t.Error("Expected error from failing adapter")
	}
}

func TestPreviewAbandonsAdapterIgnoringContext(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	stuck := &fakeAdapter{id: "stuck", delay: 5 * time.Second, ignoreCtx: true}

	start := time.Now()
	_, err := orchestrator.Preview(context.Background(), stuck, 5, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrAdapterTimeout) {
		t.Errorf("Expected ErrAdapterTimeout, got: %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("Expected preview to return at the deadline, took %s", elapsed)
	}
}

func TestPreviewTimeoutWhenAdapterHonoursContext(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	slow := &fakeAdapter{id: "slow", delay: 5 * time.Second}

	_, err := orchestrator.Preview(context.Background(), slow, 5, 50*time.Millisecond)
	if !errors.Is(err, ErrAdapterTimeout) {
		t.Errorf("Expected ErrAdapterTimeout, got: %v", err)
	}
}
