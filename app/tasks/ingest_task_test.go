package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/ingest"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

type fakeRunner struct {
	opts   ingest.Options
	report *ingest.Report
	err    error
}

func (r *fakeRunner) Run(ctx context.Context, opts ingest.Options) (*ingest.Report, error) {
	r.opts = opts
	return r.report, r.err
}

type fakePruner struct {
	before  time.Time
	deleted int64
	err     error
}

func (p *fakePruner) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.deleted, p.err
}

func TestIngestTaskExecute(t *testing.T) {
	runner := &fakeRunner{report: &ingest.Report{
		RunID:       "run-1",
		TotalEvents: 3,
		Upserted:    3,
		PerSource: []ingest.AdapterOutcome{
			{SourceID: "a", RecordCount: 3},
			{SourceID: "b", ErrorCount: 1, Errors: []string{"HTTP 500"}},
		},
	}}
	opts := ingest.Options{WindowDays: 30, PerAdapterTimeout: 5 * time.Second}

	task := NewIngestTask(runner, opts)
	task.Start()

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if runner.opts != opts {
		t.Errorf("Expected options %+v, got %+v", opts, runner.opts)
	}
	if task.GetType() != TaskTypeIngest {
		t.Errorf("Expected type %s, got %s", TaskTypeIngest, task.GetType())
	}
}

func TestIngestTaskPropagatesRunError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: connection refused", ingest.ErrSinkUnavailable)}

	task := NewIngestTask(runner, ingest.Options{WindowDays: 90})
	err := task.Execute(context.Background())

	if !errors.Is(err, ingest.ErrSinkUnavailable) {
		t.Fatalf("Expected ErrSinkUnavailable, got %v", err)
	}
}

func TestPrunePastTask(t *testing.T) {
	resolver, err := timezone.NewResolver("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	pruner := &fakePruner{deleted: 4}
	task := NewPrunePastTask(pruner, resolver)
	task.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if !pruner.before.Equal(expected) {
		t.Errorf("Expected cutoff %v, got %v", expected, pruner.before)
	}
}

func TestPrunePastTaskStoreError(t *testing.T) {
	resolver, err := timezone.NewResolver("UTC")
	if err != nil {
		t.Fatal(err)
	}

	task := NewPrunePastTask(&fakePruner{err: errors.New("disk full")}, resolver)
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected error from store")
	}
}
