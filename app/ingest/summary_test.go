package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/event"
)

func TestSummarizeCountsAndOrder(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	near := &fakeAdapter{id: "near", records: []event.RawRecord{
		record("Past", daysFromNow(-2)),
		record("Soon", daysFromNow(3)),
		record("Month", daysFromNow(20)),
	}}
	far := &fakeAdapter{id: "far", records: []event.RawRecord{
		record("Season Opener", daysFromNow(10)),
		record("Playoffs", daysFromNow(150)),
		{Title: "No Date", SourceURL: "https://far.example.com/x"},
	}}
	empty := &fakeAdapter{id: "empty", fetchErr: errors.New("HTTP 404")}

	summary := orchestrator.Summarize(context.Background(), []adapter.Adapter{empty, near, far}, time.Second, testNow, 90, true)

	if len(summary.Sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(summary.Sources))
	}

	expectedOrder := []string{"far", "near", "empty"}
	for i, id := range expectedOrder {
		if summary.Sources[i].SourceID != id {
			t.Errorf("Expected source %d to be '%s', got '%s'", i, id, summary.Sources[i].SourceID)
		}
	}

	farSummary := summary.Sources[0]
	if farSummary.TotalRaw != 3 || farSummary.NormalizedOK != 2 {
		t.Errorf("Expected 3 raw and 2 normalized, got %d and %d", farSummary.TotalRaw, farSummary.NormalizedOK)
	}
	if *farSummary.MaxDaysAhead != 150 {
		t.Errorf("Expected max days ahead 150, got %d", *farSummary.MaxDaysAhead)
	}
	if *farSummary.SpanDays != 140 {
		t.Errorf("Expected span 140 days, got %d", *farSummary.SpanDays)
	}
	if farSummary.Counts["90"] != 1 || farSummary.Counts["180"] != 2 || farSummary.Counts["7"] != 0 {
		t.Errorf("Unexpected counts: %v", farSummary.Counts)
	}
	if farSummary.ErrorCount != 1 || len(farSummary.Errors) != 1 {
		t.Errorf("Expected 1 error, got %d", farSummary.ErrorCount)
	}

	nearSummary := summary.Sources[1]
	if nearSummary.Counts["past"] != 1 || nearSummary.Counts["future"] != 2 {
		t.Errorf("Expected 1 past and 2 future, got %v", nearSummary.Counts)
	}
	if nearSummary.Counts["7"] != 1 || nearSummary.Counts["30"] != 2 {
		t.Errorf("Unexpected near counts: %v", nearSummary.Counts)
	}
	if !nearSummary.MinStartAt.Equal(daysFromNow(-2)) {
		t.Errorf("Expected min start %v, got %v", daysFromNow(-2), nearSummary.MinStartAt)
	}

	emptySummary := summary.Sources[2]
	if emptySummary.MaxDaysAhead != nil {
		t.Errorf("Expected no max days ahead, got %d", *emptySummary.MaxDaysAhead)
	}
	if emptySummary.ErrorCount != 1 || emptySummary.Errors[0] != "HTTP 404" {
		t.Errorf("Expected fetch error, got %v", emptySummary.Errors)
	}
}

func TestSummarizeHidesErrorsAndTimesOut(t *testing.T) {
	orchestrator := newTestOrchestrator(t)

	slow := &fakeAdapter{id: "slow", delay: time.Second}
	bad := &fakeAdapter{id: "bad", records: []event.RawRecord{{Title: "No Date", SourceURL: "https://bad.example.com"}}}

	summary := orchestrator.Summarize(context.Background(), []adapter.Adapter{slow, bad}, 50*time.Millisecond, testNow, 30, false)

	for _, s := range summary.Sources {
		if s.Errors != nil {
			t.Errorf("Expected errors to be omitted for %s, got %v", s.SourceID, s.Errors)
		}
		if s.ErrorCount != 1 {
			t.Errorf("Expected error count 1 for %s, got %d", s.SourceID, s.ErrorCount)
		}
		if len(s.Counts) != 5 {
			t.Errorf("Expected 5 count buckets when the window is 30 days, got %d", len(s.Counts))
		}
	}

	var slowSummary SourceSummary
	for _, s := range summary.Sources {
		if s.SourceID == "slow" {
			slowSummary = s
		}
	}
	if !slowSummary.TimedOut {
		t.Error("Expected slow source to time out")
	}
	if summary.PerAdapterTimeoutMs != 50 {
		t.Errorf("Expected timeout 50ms, got %d", summary.PerAdapterTimeoutMs)
	}
}
