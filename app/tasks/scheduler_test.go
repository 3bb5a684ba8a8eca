package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTask struct {
	Task
	calls    atomic.Int32
	failures int32
	done     chan struct{}
}

func newFakeTask(failures int32) *fakeTask {
	return &fakeTask{
		Task:     NewTask("fake"),
		failures: failures,
		done:     make(chan struct{}, 10),
	}
}

func (t *fakeTask) Execute(ctx context.Context) error {
	n := t.calls.Add(1)
	t.done <- struct{}{}
	if n <= t.failures {
		return errors.New("fake failure")
	}
	return nil
}

func waitFor(t *testing.T, done <-chan struct{}, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for execution %d", i+1)
		}
	}
}

func TestNewSchedulerInvalidSchedule(t *testing.T) {
	_, err := NewScheduler("every tuesday", 1, time.Second, func() []TaskInterface { return nil })
	if err == nil {
		t.Fatal("Expected error for invalid schedule")
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s, err := NewScheduler("*/15 * * * *", 0, 0, func() []TaskInterface { return nil })
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if s.workerCount != 1 {
		t.Errorf("Expected worker count 1, got %d", s.workerCount)
	}
	if s.taskTimeout != DefaultTaskTimeout {
		t.Errorf("Expected default task timeout, got %v", s.taskTimeout)
	}
}

func TestSchedulerRunOnStart(t *testing.T) {
	task := newFakeTask(0)

	s, err := NewScheduler("@every 1h", 1, time.Second, func() []TaskInterface {
		return []TaskInterface{task}
	})
	if err != nil {
		t.Fatal(err)
	}
	s.RunOnStart(true)
	s.Start()
	defer s.Stop()

	waitFor(t, task.done, 1)

	if task.StartedAt == nil {
		t.Error("Expected task to be started")
	}
}

func TestSchedulerDoesNotRetryFailedTask(t *testing.T) {
	failing := newFakeTask(1)
	next := newFakeTask(0)

	s, err := NewScheduler("@every 1h", 1, time.Second, func() []TaskInterface { return nil })
	if err != nil {
		t.Fatal(err)
	}
	s.Start()

	if err := s.EnqueueTask(failing); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueTask(next); err != nil {
		t.Fatal(err)
	}

	waitFor(t, failing.done, 1)
	waitFor(t, next.done, 1)
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if calls := failing.calls.Load(); calls != 1 {
		t.Errorf("Expected failing task to run once, got %d", calls)
	}
	if calls := next.calls.Load(); calls != 1 {
		t.Errorf("Expected next task to run once, got %d", calls)
	}
}

func TestSchedulerTaskTimeout(t *testing.T) {
	s, err := NewScheduler("@every 1h", 1, 20*time.Millisecond, func() []TaskInterface { return nil })
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	result := make(chan error, 1)
	task := &blockingTask{Task: NewTask("blocking"), result: result}
	if err := s.EnqueueTask(task); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Task context was never cancelled")
	}
}

type blockingTask struct {
	Task
	result chan error
}

func (t *blockingTask) Execute(ctx context.Context) error {
	<-ctx.Done()
	t.result <- ctx.Err()
	return ctx.Err()
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	s, err := NewScheduler("@every 1h", 1, time.Second, func() []TaskInterface { return nil })
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < taskQueueSize; i++ {
		if err := s.EnqueueTask(newFakeTask(0)); err != nil {
			t.Fatalf("Unexpected error enqueueing task %d: %v", i, err)
		}
	}

	if err := s.EnqueueTask(newFakeTask(0)); err == nil {
		t.Error("Expected error when queue is full")
	}
}

func TestTaskBookkeeping(t *testing.T) {
	task := NewTask(TaskTypeIngest)

	if task.ID == "" {
		t.Error("Expected task ID to be set")
	}
	if task.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}

	task.Start()
	if task.StartedAt == nil {
		t.Error("Expected start time to be recorded")
	}
	if task.GetType() != TaskTypeIngest {
		t.Errorf("Expected type %s, got %s", TaskTypeIngest, task.GetType())
	}
}
