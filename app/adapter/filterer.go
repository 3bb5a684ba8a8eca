package adapter

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

var validFilterFields = map[string]bool{
	"title":       true,
	"description": true,
	"location":    true,
	"link":        true,
	"tags":        true,
}

// Listing pages often render button text where the event title should be.
var callToActionTitles = map[string]bool{
	"buy tickets": true,
	"buy ticket":  true,
	"get tickets": true,
	"tickets":     true,
	"more info":   true,
	"show moved":  true,
	"rsvp":        true,
}

// CallToActionTitles lists the titles that are never real events, sorted.
func CallToActionTitles() []string {
	return slices.Sorted(maps.Keys(callToActionTitles))
}

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run drops records whose title is button text and records rejected by the
// source's include/exclude filters. Order is preserved.
func (f *Filterer) Run(records []event.RawRecord, sourceConfig *SourceConfig) []event.RawRecord {
	kept := make([]event.RawRecord, 0, len(records))
	for _, record := range records {
		if callToActionTitles[strings.ToLower(strings.TrimSpace(record.Title))] {
			slog.Debug("Record dropped", "source", sourceConfig.ID, "reason", "call to action title", "title", record.Title)
			continue
		}

		if isFiltered, reason := f.applyFilters(record, sourceConfig.Filters); isFiltered {
			slog.Debug("Record dropped", "source", sourceConfig.ID, "reason", reason, "title", record.Title)
			continue
		}

		kept = append(kept, record)
	}

	return kept
}

func (f *Filterer) applyFilters(record event.RawRecord, filters []SourceFilter) (bool, string) {
	for _, filter := range filters {
		value := f.getFieldValue(record, filter.Field)

		for _, exclude := range filter.Excludes {
			if f.matchesFilter(value, exclude) {
				return true, fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if f.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return true, fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return false, ""
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (f *Filterer) getFieldValue(record event.RawRecord, field string) string {
	switch field {
	case "title":
		return record.Title
	case "description":
		return record.Description
	case "location":
		return record.LocationName + " " + record.LocationAddress
	case "link":
		return record.SourceURL
	case "tags":
		return strings.Join(record.Tags, " ")
	default:
		return ""
	}
}
