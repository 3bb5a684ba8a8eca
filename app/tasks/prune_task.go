package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

// PrunePastTask deletes events that started before today in the deployment
// zone.
type PrunePastTask struct {
	Task
	store    EventPruner
	resolver *timezone.Resolver
	now      func() time.Time
}

func NewPrunePastTask(store EventPruner, resolver *timezone.Resolver) *PrunePastTask {
	return &PrunePastTask{
		Task:     NewTask(TaskTypePrunePast),
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

func (t *PrunePastTask) Execute(ctx context.Context) error {
	before, err := t.resolver.StartOfDay(t.now(), "")
	if err != nil {
		return fmt.Errorf("failed to compute start of day: %w", err)
	}

	deleted, err := t.store.DeleteBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("failed to prune past events: %w", err)
	}

	slog.Info("Past events pruned", "task_id", t.ID, "before", before, "deleted", deleted)
	return nil
}
