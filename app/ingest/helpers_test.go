package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/event"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

type fakeAdapter struct {
	id        string
	name      string
	records   []event.RawRecord
	fetchErr  error
	panicMsg  string
	delay     time.Duration
	ignoreCtx bool
	calls     atomic.Int32
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Name() string {
	if f.name == "" {
		return f.id
	}
	return f.name
}

func (f *fakeAdapter) Fetch(ctx context.Context) (adapter.Payload, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return adapter.Payload{}, ctx.Err()
			}
		}
	}
	if f.fetchErr != nil {
		return adapter.Payload{}, f.fetchErr
	}
	return adapter.Payload{URL: "https://" + f.id + ".example.com"}, nil
}

func (f *fakeAdapter) Parse(ctx context.Context, payload adapter.Payload) ([]event.RawRecord, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.records, nil
}

type memorySink struct {
	mu      sync.Mutex
	events  map[string]event.CanonicalEvent
	pingErr error
	failIDs map[string]bool
	upserts int
}

func newMemorySink() *memorySink {
	return &memorySink{events: make(map[string]event.CanonicalEvent), failIDs: make(map[string]bool)}
}

func (s *memorySink) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *memorySink) Upsert(ctx context.Context, id string, ev *event.CanonicalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failIDs[id] {
		return errors.New("write failed")
	}
	s.events[id] = *ev
	return nil
}

type countingRecorder struct {
	runs     int
	rejected int
	last     *Report
}

func (r *countingRecorder) RecordRun(report *Report, duration time.Duration) {
	r.runs++
	r.last = report
}

func (r *countingRecorder) RecordRejected(err error) {
	r.rejected++
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	resolver, err := timezone.NewResolver("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	return NewOrchestrator(event.NewNormalizer(resolver))
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(title string, start time.Time) event.RawRecord {
	return event.RawRecord{
		Title:     title,
		StartAt:   event.At(start),
		SourceURL: "https://venue.example.com/events/" + title,
	}
}

func daysFromNow(days float64) time.Time {
	return testNow.Add(time.Duration(days * 24 * float64(time.Hour)))
}
