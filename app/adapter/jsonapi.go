package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/event"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

// JSONAPIParser reads a paginated JSON event API such as a ticketing
// platform's venue or artist listing. The payload is the first page. Later
// pages are fetched until one is empty, one reaches past the window cutoff,
// or MaxPages pages have been read. Pages are expected in start order.
type JSONAPIParser struct {
	fetcher    PageFetcher
	api        SourceAPI
	resolver   *timezone.Resolver
	now        func() time.Time
	windowDays int
}

func NewJSONAPIParser(fetcher PageFetcher, api SourceAPI, resolver *timezone.Resolver, now func() time.Time, windowDays int) *JSONAPIParser {
	applyAPIDefaults(&api)
	if now == nil {
		now = time.Now
	}
	if windowDays <= 0 {
		windowDays = event.DefaultWindowDays
	}
	return &JSONAPIParser{
		fetcher:    fetcher,
		api:        api,
		resolver:   resolver,
		now:        now,
		windowDays: windowDays,
	}
}

func (p *JSONAPIParser) Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error) {
	cutoff := event.NewWindow(p.now(), p.windowDays).Cutoff()
	paged := p.api.PageParam != "" || p.api.OffsetParam != ""

	var records []event.RawRecord
	page := payload

	for n := 0; n < p.api.MaxPages; n++ {
		if n > 0 {
			if !paged {
				break
			}
			pageURL, err := p.pageURL(payload.URL, n)
			if err != nil {
				return nil, err
			}
			next, err := p.fetcher.Get(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Warn("API page fetch failed, keeping earlier pages", "url", pageURL, "page", n, "error", err)
				break
			}
			page = next
		}

		items, err := p.items(page.Body)
		if err != nil {
			if n == 0 {
				return nil, err
			}
			slog.Warn("API page unreadable, keeping earlier pages", "url", page.URL, "page", n, "error", err)
			break
		}
		if len(items) == 0 {
			break
		}

		pastCutoff := false
		for _, item := range items {
			record, start := p.record(item, payload.URL)
			records = append(records, record)
			if start.After(cutoff) {
				pastCutoff = true
			}
		}

		if pastCutoff {
			slog.Debug("API paging stopped at window cutoff", "url", payload.URL, "pages", n+1, "cutoff", cutoff)
			break
		}
	}

	return records, nil
}

func (p *JSONAPIParser) pageURL(base string, n int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse API URL: %w", err)
	}

	page := p.api.PageStart + n
	q := u.Query()
	if p.api.OffsetParam != "" {
		q.Set(p.api.OffsetParam, strconv.Itoa(page*p.api.PageSize))
	} else {
		q.Set(p.api.PageParam, strconv.Itoa(page))
	}
	if p.api.SizeParam != "" && p.api.PageSize > 0 {
		q.Set(p.api.SizeParam, strconv.Itoa(p.api.PageSize))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (p *JSONAPIParser) items(body []byte) ([]any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	v := lookup(doc, p.api.Items)
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("items path %q is not an array", p.api.Items)
	}
	return items, nil
}

// record maps one item. The returned time is the resolved start, zero when
// the start could not be read.
func (p *JSONAPIParser) record(item any, pageURL string) (event.RawRecord, time.Time) {
	f := p.api.Fields

	rec := event.RawRecord{
		Title:           lookupString(item, f.Title),
		NaturalKey:      lookupString(item, f.ID),
		SourceURL:       lookupString(item, f.URL),
		Description:     lookupString(item, f.Description),
		LocationName:    lookupString(item, f.LocationName),
		LocationAddress: lookupString(item, f.LocationAddress),
	}
	if rec.SourceURL == "" {
		rec.SourceURL = pageURL
	}

	zone := lookupString(item, f.Zone)

	var start time.Time
	rec.StartAt, start = p.when(lookupString(item, f.Start), zone)
	rec.EndAt, _ = p.when(lookupString(item, f.End), zone)

	return rec, start
}

// when leaves values as text for the normalizer unless the item carries its
// own zone, which the normalizer never sees.
func (p *JSONAPIParser) when(s, zone string) (event.When, time.Time) {
	if s == "" {
		return event.When{}, time.Time{}
	}

	t, err := p.resolver.Parse(s, zone)
	if err != nil {
		return event.Text(s), time.Time{}
	}
	if zone != "" && !timezone.HasExplicitOffset(s) {
		return event.At(t), t
	}
	return event.Text(s), t
}

// lookup walks a dotted path through decoded JSON. Numeric segments index
// arrays. An empty path is v itself.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}

	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			v = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}

	return v
}

func lookupString(v any, path string) string {
	if path == "" {
		return ""
	}

	switch val := lookup(v, path).(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
