package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

var eventTypes = map[string]bool{
	"Event":          true,
	"MusicEvent":     true,
	"TheaterEvent":   true,
	"ComedyEvent":    true,
	"DanceEvent":     true,
	"SportsEvent":    true,
	"Festival":       true,
	"ScreeningEvent": true,
	"LiteraryEvent":  true,
	"SocialEvent":    true,
}

// JSONLDParser extracts schema.org events embedded as application/ld+json.
type JSONLDParser struct{}

func NewJSONLDParser() *JSONLDParser {
	return &JSONLDParser{}
}

func (p *JSONLDParser) Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return ExtractJSONLDEvents(doc, payload.URL), nil
}

// ExtractJSONLDEvents returns every event object found in the document's
// JSON-LD blocks, including ones nested in arrays and @graph.
func ExtractJSONLDEvents(doc *goquery.Document, pageURL string) []event.RawRecord {
	var records []event.RawRecord

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var value any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &value); err != nil {
			slog.Debug("Skipping invalid JSON-LD block", "url", pageURL, "error", err)
			return
		}

		for _, obj := range findEvents(value) {
			if record, ok := recordFromJSONLD(obj, pageURL); ok {
				records = append(records, record)
			}
		}
	})

	return records
}

func findEvents(value any) []map[string]any {
	switch v := value.(type) {
	case []any:
		var found []map[string]any
		for _, item := range v {
			found = append(found, findEvents(item)...)
		}
		return found
	case map[string]any:
		if isEventLike(v) {
			return []map[string]any{v}
		}
		if graph, ok := v["@graph"]; ok {
			return findEvents(graph)
		}
		if items, ok := v["itemListElement"]; ok {
			return findEvents(items)
		}
		if item, ok := v["item"].(map[string]any); ok {
			return findEvents(item)
		}
	}
	return nil
}

func isEventLike(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return eventTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && eventTypes[s] {
				return true
			}
		}
	}
	return false
}

func recordFromJSONLD(obj map[string]any, pageURL string) (event.RawRecord, bool) {
	title := jsonLDTitle(obj)
	start := stringField(obj, "startDate")
	if title == "" && start == "" {
		return event.RawRecord{}, false
	}

	record := event.RawRecord{
		Title:       title,
		StartAt:     event.Text(start),
		Description: stringField(obj, "description"),
		SourceURL:   stringField(obj, "url"),
	}

	if end := stringField(obj, "endDate"); end != "" {
		record.EndAt = event.Text(end)
	}

	if record.SourceURL == "" {
		record.SourceURL = pageURL
		// Several events on one page share its URL.
		record.NaturalKey = pageURL + "#" + title + "@" + start
	}

	record.LocationName, record.LocationAddress = jsonLDLocation(obj["location"])

	if keywords := stringField(obj, "keywords"); keywords != "" {
		for _, k := range strings.Split(keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				record.Tags = append(record.Tags, k)
			}
		}
	}

	extra := map[string]any{}
	if offers := firstObject(obj["offers"]); offers != nil {
		if price := scalarString(offers["price"]); price != "" {
			extra["price"] = price
		}
		if currency := stringField(offers, "priceCurrency"); currency != "" {
			extra["currency"] = currency
		}
		if availability := stringField(offers, "availability"); availability != "" {
			extra["availability"] = availability
		}
	}
	if image := firstString(obj["image"]); image != "" {
		extra["image_url"] = image
	}
	if len(extra) > 0 {
		record.Extra = extra
	}

	return record, true
}

// jsonLDTitle prefers the event name, then the first performer's name.
// Single-character names are noise from ticketing widgets.
func jsonLDTitle(obj map[string]any) string {
	if name := stringField(obj, "name"); len([]rune(name)) > 1 {
		return name
	}
	for _, key := range []string{"performer", "performers"} {
		if performer := firstObject(obj[key]); performer != nil {
			if name := stringField(performer, "name"); len([]rune(name)) > 1 {
				return name
			}
		}
	}
	return ""
}

func jsonLDLocation(value any) (string, string) {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s), ""
	}

	loc := firstObject(value)
	if loc == nil {
		return "", ""
	}

	name := stringField(loc, "name")

	switch addr := loc["address"].(type) {
	case string:
		return name, strings.TrimSpace(addr)
	case map[string]any:
		parts := make([]string, 0, 4)
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
			if v := stringField(addr, key); v != "" {
				parts = append(parts, v)
			}
		}
		return name, strings.Join(parts, ", ")
	}

	return name, ""
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func scalarString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	}
	return ""
}

func firstObject(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				return obj
			}
		}
	}
	return nil
}

func firstString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if s := firstString(item); s != "" {
				return s
			}
		}
	case map[string]any:
		return stringField(v, "url")
	}
	return ""
}
