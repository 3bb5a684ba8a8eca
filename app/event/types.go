package event

import (
	"encoding/json"
	"time"
)

// When is a time value as a source supplied it: free text that may be civil
// time without an offset, or an instant that is already resolved.
// The zero value means absent.
type When struct {
	Text    string
	Instant time.Time
}

func At(t time.Time) When {
	return When{Instant: t}
}

func Text(s string) When {
	return When{Text: s}
}

func (w When) IsZero() bool {
	return w.Instant.IsZero() && w.Text == ""
}

func (w When) String() string {
	if !w.Instant.IsZero() {
		return w.Instant.UTC().Format(time.RFC3339)
	}
	return w.Text
}

// MarshalJSON renders an instant as RFC 3339 UTC and text as given.
// Absent values are null.
func (w When) MarshalJSON() ([]byte, error) {
	if w.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(w.String())
}

// RawRecord is an event as parsed by an adapter, before normalization.
// Empty strings mean absent.
type RawRecord struct {
	Title           string         `json:"title"`
	StartAt         When           `json:"start_at"`
	EndAt           When           `json:"end_at"`
	LocationName    string         `json:"location_name,omitempty"`
	LocationAddress string         `json:"location_address,omitempty"`
	SourceURL       string         `json:"source_url"`
	NaturalKey      string         `json:"natural_key,omitempty"` // e.g. a ticketing platform's event id
	Description     string         `json:"description,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// CanonicalEvent is the storage-ready representation of an event.
type CanonicalEvent struct {
	ID              string         `json:"id"`
	SourceID        string         `json:"source_id"`
	SourceName      string         `json:"source_name"`
	SourceURL       string         `json:"source_url"`
	Title           string         `json:"title"`
	StartAt         time.Time      `json:"start_at"`
	EndAt           *time.Time     `json:"end_at"`
	LocationName    *string        `json:"location_name"`
	LocationAddress *string        `json:"location_address"`
	Description     *string        `json:"description"`
	Tags            []string       `json:"tags"`
	Extra           map[string]any `json:"extra,omitempty"`
}
