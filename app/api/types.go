package api

import (
	"context"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/database"
	"github.com/ckubal/mc-adventure-finder/app/ingest"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

const (
	DefaultEventsLimit = 500
	MaxEventsLimit     = 500
)

type IngestRunner interface {
	Run(ctx context.Context, opts ingest.Options) (*ingest.Report, error)
}

var _ IngestRunner = (*ingest.Ingestor)(nil)

type Handler struct {
	sourceCache    *adapter.SourceCache
	registry       *adapter.Registry
	orchestrator   *ingest.Orchestrator
	ingestor       IngestRunner
	eventStore     database.EventStore
	resolver       *timezone.Resolver
	windowDays     int
	adapterTimeout time.Duration
	now            func() time.Time
}
