package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ckubal/mc-adventure-finder/app/ingest"
)

type IngestTask struct {
	Task
	runner IngestRunner
	opts   ingest.Options
}

func NewIngestTask(runner IngestRunner, opts ingest.Options) *IngestTask {
	return &IngestTask{
		Task:   NewTask(TaskTypeIngest),
		runner: runner,
		opts:   opts,
	}
}

func (t *IngestTask) Execute(ctx context.Context) error {
	slog.Debug("Starting scheduled ingestion", "task_id", t.ID, "dry_run", t.opts.DryRun, "window_days", t.opts.WindowDays)

	report, err := t.runner.Run(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("ingestion run failed: %w", err)
	}

	failed := 0
	for _, outcome := range report.PerSource {
		if outcome.ErrorCount > 0 {
			failed++
		}
	}

	slog.Info("Scheduled ingestion completed",
		"run_id", report.RunID,
		"events", report.TotalEvents,
		"upserted", report.Upserted,
		"sink_errors", report.SinkErrors,
		"sources", len(report.PerSource),
		"sources_with_errors", failed,
		"duration", t.GetDuration())

	return nil
}
