package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/event"
)

const (
	DefaultAdapterTimeout = 25 * time.Second
	MaxOutcomeErrors      = 20
	runTitleLength        = 30
)

var ErrAdapterTimeout = errors.New("adapter timeout")

// AdapterOutcome is what one adapter contributed to a run. A timed out
// adapter always has a RecordCount of 0.
type AdapterOutcome struct {
	SourceID    string        `json:"source_id"`
	SourceName  string        `json:"source_name"`
	RecordCount int           `json:"count"`
	Skipped     int           `json:"skipped"` // past the window cutoff
	Errors      []string      `json:"errors"`
	ErrorCount  int           `json:"error_count"`
	TimedOut    bool          `json:"timed_out"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"duration_ms"`
}

func newOutcome(a adapter.Adapter) AdapterOutcome {
	return AdapterOutcome{SourceID: a.ID(), SourceName: a.Name(), Errors: []string{}}
}

func (o *AdapterOutcome) addError(msg string) {
	o.ErrorCount++
	if len(o.Errors) < MaxOutcomeErrors {
		o.Errors = append(o.Errors, msg)
	}
}

type Result struct {
	Events   []event.CanonicalEvent
	Outcomes []AdapterOutcome
}

type Orchestrator struct {
	normalizer *event.Normalizer
}

func NewOrchestrator(normalizer *event.Normalizer) *Orchestrator {
	return &Orchestrator{normalizer: normalizer}
}

type adapterResult struct {
	events  []event.CanonicalEvent
	outcome AdapterOutcome
}

// RunAll runs every adapter concurrently, each under its own timeout, and
// returns once all of them have completed, failed or timed out. Events keep
// source order within an adapter and outcomes keep adapter order.
func (o *Orchestrator) RunAll(ctx context.Context, adapters []adapter.Adapter, timeout time.Duration, window event.Window) Result {
	results := make([]adapterResult, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.runIsolated(ctx, a, timeout, window)
		}()
	}
	wg.Wait()

	var result Result
	result.Outcomes = make([]AdapterOutcome, 0, len(results))
	for _, r := range results {
		result.Events = append(result.Events, r.events...)
		result.Outcomes = append(result.Outcomes, r.outcome)
	}

	return result
}

func (o *Orchestrator) runIsolated(ctx context.Context, a adapter.Adapter, timeout time.Duration, window event.Window) adapterResult {
	start := time.Now()

	res, err := withDeadline(ctx, timeout, func(runCtx context.Context) adapterResult {
		return o.runAdapter(runCtx, a, window)
	})
	if err != nil {
		res = adapterResult{outcome: newOutcome(a)}
		if errors.Is(err, context.DeadlineExceeded) {
			res.outcome.TimedOut = true
			res.outcome.addError(fmt.Sprintf("%v after %s", ErrAdapterTimeout, timeout))
			slog.Warn("Adapter timed out", "source", a.ID(), "timeout", timeout)
		} else {
			res.outcome.addError(err.Error())
			slog.Error("Adapter failed", "source", a.ID(), "error", err)
		}
	}

	res.outcome.Duration = time.Since(start)
	res.outcome.DurationMs = res.outcome.Duration.Milliseconds()

	slog.Info("Adapter completed", "source", a.ID(), "records", res.outcome.RecordCount, "skipped", res.outcome.Skipped, "errors", res.outcome.ErrorCount, "timed_out", res.outcome.TimedOut, "duration", res.outcome.Duration)

	return res
}

func (o *Orchestrator) runAdapter(ctx context.Context, a adapter.Adapter, window event.Window) adapterResult {
	res := adapterResult{outcome: newOutcome(a)}

	records, err := fetchAndParse(ctx, a)
	if err != nil {
		res.outcome.addError(err.Error())
		return res
	}

	for _, raw := range records {
		id := event.DeriveID(a.ID(), event.IdentityKey(raw))

		ev, err := o.normalizer.Run(raw, a.ID(), a.Name(), id)
		if err != nil {
			res.outcome.addError(recordError(raw.Title, runTitleLength, err))
			slog.Debug("Record rejected", "source", a.ID(), "title", raw.Title, "error", err)
			continue
		}

		if !window.Contains(ev.StartAt) {
			res.outcome.Skipped++
			continue
		}

		res.events = append(res.events, *ev)
	}

	res.outcome.RecordCount = len(res.events)
	return res
}

func fetchAndParse(ctx context.Context, a adapter.Adapter) ([]event.RawRecord, error) {
	payload, err := a.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return a.Parse(ctx, payload)
}

// withDeadline runs fn in its own goroutine and waits for its result or for
// the deadline, whichever comes first. A result that arrives late is dropped;
// fn sees its context cancelled. A panic in fn is returned as an error.
func withDeadline[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) T) (T, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	panicked := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicked <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(runCtx)
	}()

	var zero T
	select {
	case res := <-done:
		return res, nil
	case err := <-panicked:
		return zero, err
	case <-runCtx.Done():
		return zero, runCtx.Err()
	}
}

func recordError(title string, n int, err error) string {
	runes := []rune(title)
	if len(runes) > n {
		runes = runes[:n]
	}
	return fmt.Sprintf("Event \"%s\": %v", string(runes), err)
}
