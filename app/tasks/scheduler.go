package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultTaskTimeout = 10 * time.Minute
	taskQueueSize      = 2
)

// TaskFactory returns the tasks to enqueue on each scheduled tick.
type TaskFactory func() []TaskInterface

type Scheduler struct {
	cron        *cron.Cron
	schedule    string
	factory     TaskFactory
	runOnStart  bool
	workerCount int
	taskTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

// NewScheduler validates schedule, a standard five-field cron expression
// or a descriptor such as "@hourly".
func NewScheduler(schedule string, workerCount int, taskTimeout time.Duration, factory TaskFactory) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:        cron.New(),
		schedule:    schedule,
		factory:     factory,
		workerCount: workerCount,
		taskTimeout: taskTimeout,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, taskQueueSize),
	}, nil
}

// RunOnStart makes Start enqueue one round of tasks immediately.
func (s *Scheduler) RunOnStart(enabled bool) {
	s.runOnStart = enabled
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueTasks); err != nil {
		slog.Error("Failed to register schedule", "schedule", s.schedule, "error", err)
	}
	s.cron.Start()

	slog.Info("Scheduler started", "schedule", s.schedule, "workers", s.workerCount)

	if s.runOnStart {
		s.enqueueTasks()
	}
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueTasks() {
	tasks := s.factory()
	slog.Debug("Scheduled tick", "tasks", len(tasks))

	for _, task := range tasks {
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue task", "type", string(task.GetType()), "id", task.GetID(), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

// executeTask runs a task once. Failed tasks are logged and dropped; the
// next scheduled tick starts fresh.
func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
		return
	}

	slog.Debug("Worker task completed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration())
}
