package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

// Times are stored as UTC RFC 3339 text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05Z"

var _ EventStore = (*EventRepository)(nil)

type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Ping(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("database not configured")
	}
	return r.db.PingContext(ctx)
}

// Upsert inserts ev or replaces the stored event with the same id. A stored
// extra payload is kept when ev carries none.
func (r *EventRepository) Upsert(ctx context.Context, id string, ev *event.CanonicalEvent) error {
	tags := ev.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var extraJSON sql.NullString
	if len(ev.Extra) > 0 {
		data, err := json.Marshal(ev.Extra)
		if err != nil {
			return fmt.Errorf("failed to encode extra: %w", err)
		}
		extraJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := formatTime(time.Now())

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (
			id, source_id, source_name, source_url, title, start_at, end_at,
			location_name, location_address, description, tags, extra,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_id = excluded.source_id,
			source_name = excluded.source_name,
			source_url = excluded.source_url,
			title = excluded.title,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			location_name = excluded.location_name,
			location_address = excluded.location_address,
			description = excluded.description,
			tags = excluded.tags,
			extra = COALESCE(excluded.extra, events.extra),
			updated_at = excluded.updated_at
	`, id, ev.SourceID, ev.SourceName, ev.SourceURL, ev.Title, formatTime(ev.StartAt),
		nullTime(ev.EndAt), nullString(ev.LocationName), nullString(ev.LocationAddress),
		nullString(ev.Description), string(tagsJSON), extraJSON, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}

	return nil
}

// ListUpcoming returns events starting at or after from, soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]event.CanonicalEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE start_at >= ?
		ORDER BY start_at ASC, id ASC
		LIMIT ?
	`, formatTime(from), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (r *EventRepository) ListBySource(ctx context.Context, sourceID string, limit int) ([]event.CanonicalEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE source_id = ?
		ORDER BY start_at ASC, id ASC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for source: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (r *EventRepository) GetEventCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get event count: %w", err)
	}
	return count, nil
}

func (r *EventRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE start_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete past events: %w", err)
	}
	return result.RowsAffected()
}

func (r *EventRepository) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events for source: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByTitles removes events whose trimmed title matches one of titles,
// ignoring case.
func (r *EventRepository) DeleteByTitles(ctx context.Context, titles []string) (int64, error) {
	if len(titles) == 0 {
		return 0, nil
	}

	args := make([]any, len(titles))
	for i, title := range titles {
		args[i] = strings.ToLower(strings.TrimSpace(title))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(titles)), ",")

	result, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE lower(trim(title)) IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events by title: %w", err)
	}
	return result.RowsAffected()
}

const eventColumns = `id, source_id, source_name, source_url, title, start_at, end_at,
		location_name, location_address, description, tags, extra`

func scanEvents(rows *sql.Rows) ([]event.CanonicalEvent, error) {
	events := []event.CanonicalEvent{}
	for rows.Next() {
		var ev event.CanonicalEvent
		var startAt, tagsJSON string
		var endAt, locationName, locationAddress, description, extraJSON sql.NullString

		err := rows.Scan(&ev.ID, &ev.SourceID, &ev.SourceName, &ev.SourceURL, &ev.Title,
			&startAt, &endAt, &locationName, &locationAddress, &description, &tagsJSON, &extraJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if ev.StartAt, err = time.Parse(timeLayout, startAt); err != nil {
			return nil, fmt.Errorf("failed to parse start_at of %s: %w", ev.ID, err)
		}
		if endAt.Valid {
			t, err := time.Parse(timeLayout, endAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse end_at of %s: %w", ev.ID, err)
			}
			ev.EndAt = &t
		}

		ev.LocationName = stringPtr(locationName)
		ev.LocationAddress = stringPtr(locationAddress)
		ev.Description = stringPtr(description)

		if err := json.Unmarshal([]byte(tagsJSON), &ev.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s: %w", ev.ID, err)
		}
		if ev.Tags == nil {
			ev.Tags = []string{}
		}
		if extraJSON.Valid {
			if err := json.Unmarshal([]byte(extraJSON.String), &ev.Extra); err != nil {
				return nil, fmt.Errorf("failed to decode extra of %s: %w", ev.ID, err)
			}
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
