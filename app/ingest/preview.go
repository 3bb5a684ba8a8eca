package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/event"
)

const DefaultPreviewLimit = 5

type Sample struct {
	Raw        event.RawRecord       `json:"raw"`
	Normalized *event.CanonicalEvent `json:"normalized"`
	Error      string                `json:"error,omitempty"`
}

type PreviewResult struct {
	SourceID   string   `json:"source_id"`
	SourceName string   `json:"source_name"`
	TotalFound int      `json:"total_found"`
	Samples    []Sample `json:"samples"`
}

// Preview runs one adapter under timeout and shows its first limit records
// next to their normalized form. Nothing is stored. An adapter that ignores
// its context is abandoned at the deadline and ErrAdapterTimeout is returned.
func (o *Orchestrator) Preview(ctx context.Context, a adapter.Adapter, limit int, timeout time.Duration) (*PreviewResult, error) {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}

	type fetched struct {
		records []event.RawRecord
		err     error
	}

	res, err := withDeadline(ctx, timeout, func(runCtx context.Context) fetched {
		records, err := fetchAndParse(runCtx, a)
		return fetched{records: records, err: err}
	})
	if err == nil {
		err = res.err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrAdapterTimeout, a.ID(), timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run adapter %s: %w", a.ID(), err)
	}
	records := res.records

	result := &PreviewResult{
		SourceID:   a.ID(),
		SourceName: a.Name(),
		TotalFound: len(records),
		Samples:    make([]Sample, 0, min(limit, len(records))),
	}

	for _, raw := range records[:min(limit, len(records))] {
		sample := Sample{Raw: raw}
		ev, err := o.normalizer.Run(raw, a.ID(), a.Name(), event.DeriveID(a.ID(), event.IdentityKey(raw)))
		if err != nil {
			sample.Error = err.Error()
		} else {
			sample.Normalized = ev
		}
		result.Samples = append(result.Samples, sample)
	}

	return result, nil
}
