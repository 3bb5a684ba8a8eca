package ingest

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/event"
)

const summaryTitleLength = 40

// SourceSummary describes how far ahead one source's listings reach.
type SourceSummary struct {
	SourceID     string         `json:"source_id"`
	SourceName   string         `json:"source_name"`
	TotalRaw     int            `json:"total_raw"`
	NormalizedOK int            `json:"normalized_ok"`
	MinStartAt   *time.Time     `json:"min_start_at"`
	MaxStartAt   *time.Time     `json:"max_start_at"`
	SpanDays     *int           `json:"span_days"`
	MaxDaysAhead *int           `json:"max_days_ahead"`
	Counts       map[string]int `json:"counts"`
	Errors       []string       `json:"errors,omitempty"`
	ErrorCount   int            `json:"error_count"`
	TimedOut     bool           `json:"timed_out"`
}

type Summary struct {
	Now                 time.Time       `json:"now"`
	WindowDays          int             `json:"window_days"`
	PerAdapterTimeoutMs int64           `json:"per_adapter_timeout_ms"`
	Sources             []SourceSummary `json:"sources"`
}

func summaryCutoffs(windowDays int) []int {
	cutoffs := []int{7, 30, 180}
	for _, c := range cutoffs {
		if c == windowDays {
			return cutoffs
		}
	}
	return []int{7, 30, windowDays, 180}
}

func newCounts(windowDays int) map[string]int {
	counts := map[string]int{"future": 0, "past": 0}
	for _, c := range summaryCutoffs(windowDays) {
		counts[strconv.Itoa(c)] = 0
	}
	return counts
}

// Summarize fetches and normalizes every source without storing anything
// and reports each source's date coverage. Sources are ordered by how far
// ahead they reach, sources without events last.
func (o *Orchestrator) Summarize(ctx context.Context, adapters []adapter.Adapter, timeout time.Duration, now time.Time, windowDays int, includeErrors bool) *Summary {
	summaries := make([]SourceSummary, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summaries[i] = o.summarizeIsolated(ctx, a, timeout, now, windowDays)
		}()
	}
	wg.Wait()

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].MaxDaysAhead, summaries[j].MaxDaysAhead
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})

	for i := range summaries {
		if !includeErrors {
			summaries[i].Errors = nil
		}
	}

	return &Summary{
		Now:                 now.UTC(),
		WindowDays:          windowDays,
		PerAdapterTimeoutMs: timeout.Milliseconds(),
		Sources:             summaries,
	}
}

func (o *Orchestrator) summarizeIsolated(ctx context.Context, a adapter.Adapter, timeout time.Duration, now time.Time, windowDays int) SourceSummary {
	summary, err := withDeadline(ctx, timeout, func(runCtx context.Context) SourceSummary {
		return o.summarizeOne(runCtx, a, now, windowDays)
	})
	if err != nil {
		summary = SourceSummary{
			SourceID:   a.ID(),
			SourceName: a.Name(),
			Counts:     newCounts(windowDays),
			TimedOut:   errors.Is(err, context.DeadlineExceeded),
		}
		if summary.TimedOut {
			summary.Errors = []string{ErrAdapterTimeout.Error() + " after " + timeout.String()}
		} else {
			summary.Errors = []string{err.Error()}
		}
		summary.ErrorCount = 1
	}
	return summary
}

func (o *Orchestrator) summarizeOne(ctx context.Context, a adapter.Adapter, now time.Time, windowDays int) SourceSummary {
	summary := SourceSummary{
		SourceID:   a.ID(),
		SourceName: a.Name(),
		Counts:     newCounts(windowDays),
	}

	addError := func(msg string) {
		summary.ErrorCount++
		if len(summary.Errors) < MaxOutcomeErrors {
			summary.Errors = append(summary.Errors, msg)
		}
	}

	records, err := fetchAndParse(ctx, a)
	if err != nil {
		addError(err.Error())
		return summary
	}
	summary.TotalRaw = len(records)

	var minStart, maxStart time.Time
	for _, raw := range records {
		ev, err := o.normalizer.Run(raw, a.ID(), a.Name(), event.DeriveID(a.ID(), event.IdentityKey(raw)))
		if err != nil {
			addError(recordError(raw.Title, summaryTitleLength, err))
			continue
		}
		summary.NormalizedOK++

		start := ev.StartAt
		if minStart.IsZero() || start.Before(minStart) {
			minStart = start
		}
		if maxStart.IsZero() || start.After(maxStart) {
			maxStart = start
		}

		deltaDays := daysBetween(now, start)
		if deltaDays < 0 {
			summary.Counts["past"]++
			continue
		}
		summary.Counts["future"]++
		for _, c := range summaryCutoffs(windowDays) {
			if deltaDays <= float64(c) {
				summary.Counts[strconv.Itoa(c)]++
			}
		}
	}

	if summary.NormalizedOK > 0 {
		span := int(math.Round(daysBetween(minStart, maxStart)))
		ahead := int(math.Round(daysBetween(now, maxStart)))
		summary.MinStartAt = &minStart
		summary.MaxStartAt = &maxStart
		summary.SpanDays = &span
		summary.MaxDaysAhead = &ahead
	}

	return summary
}

func daysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}
