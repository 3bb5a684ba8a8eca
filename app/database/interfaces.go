package database

import (
	"context"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

type EventStore interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, id string, ev *event.CanonicalEvent) error

	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]event.CanonicalEvent, error)
	ListBySource(ctx context.Context, sourceID string, limit int) ([]event.CanonicalEvent, error)
	GetEventCount(ctx context.Context) (int, error)

	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteBySource(ctx context.Context, sourceID string) (int64, error)
	DeleteByTitles(ctx context.Context, titles []string) (int64, error)
}
