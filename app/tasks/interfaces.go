package tasks

import (
	"context"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/ingest"
)

// TaskSchedulerInterface is what main uses to drive background work.
//
//	scheduler, err := NewScheduler("*/30 * * * *", 1, DefaultTaskTimeout, factory)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// IngestRunner runs one ingestion pass.
type IngestRunner interface {
	Run(ctx context.Context, opts ingest.Options) (*ingest.Report, error)
}

// EventPruner removes events that started before a point in time.
type EventPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
