package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/event"
)

var (
	ErrSinkUnavailable = errors.New("sink unavailable")
	ErrInvalidWindow   = errors.New("window days must be positive")
	ErrInvalidTimeout  = errors.New("adapter timeout must be positive")
)

// Sink stores canonical events keyed by id. Upsert must be idempotent.
type Sink interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, id string, ev *event.CanonicalEvent) error
}

// Recorder observes finished and rejected runs.
type Recorder interface {
	RecordRun(report *Report, duration time.Duration)
	RecordRejected(err error)
}

type Options struct {
	DryRun            bool
	WindowDays        int
	PerAdapterTimeout time.Duration // 0 means DefaultAdapterTimeout
}

type Report struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	DryRun      bool             `json:"dry_run"`
	WindowDays  int              `json:"window_days"`
	TotalEvents int              `json:"total_events"`
	Upserted    int              `json:"upserted"`
	SinkErrors  int              `json:"sink_errors"`
	PerSource   []AdapterOutcome `json:"per_source"`
}

type Ingestor struct {
	registry     *adapter.Registry
	orchestrator *Orchestrator
	sink         Sink
	recorder     Recorder
	now          func() time.Time
}

// NewIngestor wires a run. sink may be nil, in which case only dry runs
// are accepted; recorder may be nil.
func NewIngestor(registry *adapter.Registry, orchestrator *Orchestrator, sink Sink, recorder Recorder) *Ingestor {
	return &Ingestor{
		registry:     registry,
		orchestrator: orchestrator,
		sink:         sink,
		recorder:     recorder,
		now:          time.Now,
	}
}

func (i *Ingestor) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := i.checkPreconditions(ctx, &opts); err != nil {
		if i.recorder != nil {
			i.recorder.RecordRejected(err)
		}
		return nil, err
	}

	started := time.Now()
	report := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  i.now().UTC(),
		DryRun:     opts.DryRun,
		WindowDays: opts.WindowDays,
	}

	adapters := i.registry.Adapters()
	slog.Info("Ingestion run started", "run_id", report.RunID, "sources", len(adapters), "dry_run", opts.DryRun, "window_days", opts.WindowDays, "timeout", opts.PerAdapterTimeout)

	window := event.NewWindow(report.StartedAt, opts.WindowDays)
	result := i.orchestrator.RunAll(ctx, adapters, opts.PerAdapterTimeout, window)

	report.TotalEvents = len(result.Events)
	report.PerSource = result.Outcomes

	if !opts.DryRun {
		for idx := range result.Events {
			ev := &result.Events[idx]
			if err := i.sink.Upsert(ctx, ev.ID, ev); err != nil {
				report.SinkErrors++
				slog.Warn("Failed to upsert event", "run_id", report.RunID, "source", ev.SourceID, "id", ev.ID, "error", err)
				continue
			}
			report.Upserted++
		}
	}

	duration := time.Since(started)
	if i.recorder != nil {
		i.recorder.RecordRun(report, duration)
	}

	slog.Info("Ingestion run completed", "run_id", report.RunID, "events", report.TotalEvents, "upserted", report.Upserted, "sink_errors", report.SinkErrors, "duration", duration)

	return report, nil
}

// checkPreconditions validates opts before any adapter runs and fills in
// the default timeout.
func (i *Ingestor) checkPreconditions(ctx context.Context, opts *Options) error {
	if opts.WindowDays <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, opts.WindowDays)
	}

	if opts.PerAdapterTimeout == 0 {
		opts.PerAdapterTimeout = DefaultAdapterTimeout
	}
	if opts.PerAdapterTimeout < 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidTimeout, opts.PerAdapterTimeout)
	}

	if opts.DryRun {
		return nil
	}

	if i.sink == nil {
		return fmt.Errorf("%w: no sink configured", ErrSinkUnavailable)
	}
	if err := i.sink.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	return nil
}
