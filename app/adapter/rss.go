package adapter

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

// RSSParser reads RSS and Atom event feeds. Event times come from the RSS
// event module (ev:startdate, ev:enddate) when present, else from the
// item's published date.
type RSSParser struct {
	gofeedParser *gofeed.Parser
}

func NewRSSParser() *RSSParser {
	return &RSSParser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *RSSParser) Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	records := make([]event.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, p.toRecord(item))
	}

	return records, nil
}

func (p *RSSParser) toRecord(item *gofeed.Item) event.RawRecord {
	record := event.RawRecord{
		Title:       item.Title,
		SourceURL:   item.Link,
		NaturalKey:  cmp.Or(item.GUID, item.Link),
		Description: cmp.Or(item.Description, item.Content),
		Tags:        item.Categories,
	}

	if start := extensionValue(item.Extensions, "ev", "startdate"); start != "" {
		record.StartAt = event.Text(start)
	} else if item.PublishedParsed != nil {
		record.StartAt = event.At(*item.PublishedParsed)
	} else {
		record.StartAt = event.Text(item.Published)
	}

	if end := extensionValue(item.Extensions, "ev", "enddate"); end != "" {
		record.EndAt = event.Text(end)
	}

	if location := extensionValue(item.Extensions, "ev", "location"); location != "" {
		record.LocationName = location
	}

	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil && item.Enclosures[0].URL != "" {
		record.Extra = map[string]any{"image_url": item.Enclosures[0].URL}
	}

	if item.UpdatedParsed != nil {
		if record.Extra == nil {
			record.Extra = map[string]any{}
		}
		record.Extra["updated_at"] = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}

	return record
}

func extensionValue(extensions ext.Extensions, prefix, name string) string {
	if extensions == nil {
		return ""
	}
	values := extensions[prefix][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
