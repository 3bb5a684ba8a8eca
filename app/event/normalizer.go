package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

var (
	ErrInvalidStartTime = errors.New("invalid start time")
	ErrEmptyTitle       = errors.New("title is empty")
	ErrEmptyURL         = errors.New("source URL is empty")
)

type Normalizer struct {
	resolver *timezone.Resolver
}

func NewNormalizer(resolver *timezone.Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Run maps a raw record to a CanonicalEvent. Times without an offset are
// read in the resolver's default zone.
func (n *Normalizer) Run(raw RawRecord, sourceID, sourceName, id string) (*CanonicalEvent, error) {
	startAt, err := n.resolve(raw.StartAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStartTime, err)
	}

	var endAt *time.Time
	if !raw.EndAt.IsZero() {
		if t, err := n.resolve(raw.EndAt); err == nil {
			endAt = &t
		}
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	sourceURL := strings.TrimSpace(raw.SourceURL)
	if sourceURL == "" {
		return nil, ErrEmptyURL
	}

	address := optional(raw.LocationAddress)

	locationName := optional(raw.LocationName)
	if locationName == nil {
		locationName = address
	}
	if locationName == nil {
		locationName = optional(sourceName)
	}

	tags := make([]string, 0, len(raw.Tags))
	tags = append(tags, raw.Tags...)

	var extra map[string]any
	if len(raw.Extra) > 0 {
		extra = raw.Extra
	}

	return &CanonicalEvent{
		ID:              id,
		SourceID:        sourceID,
		SourceName:      sourceName,
		SourceURL:       sourceURL,
		Title:           title,
		StartAt:         startAt,
		EndAt:           endAt,
		LocationName:    locationName,
		LocationAddress: address,
		Description:     optional(raw.Description),
		Tags:            tags,
		Extra:           extra,
	}, nil
}

func (n *Normalizer) resolve(w When) (time.Time, error) {
	if !w.Instant.IsZero() {
		return w.Instant.UTC(), nil
	}
	return n.resolver.ParseDefault(w.Text)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
