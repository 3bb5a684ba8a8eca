package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

var apiNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type ticketingAPI struct {
	mu    sync.Mutex
	seen  []string
	pages map[string]string // page or offset value -> body
}

func (api *ticketingAPI) handler(param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.URL.Query().Get(param)
		if value == "" {
			value = "0"
		}

		api.mu.Lock()
		api.seen = append(api.seen, value)
		api.mu.Unlock()

		body, ok := api.pages[value]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func (api *ticketingAPI) requested() []string {
	api.mu.Lock()
	defer api.mu.Unlock()
	return append([]string(nil), api.seen...)
}

func apiEvent(id, name, start string) string {
	return fmt.Sprintf(`{"id": %s, "name": %q, "url": "https://tickets.example.com/e/%s", "dates": {"start": %q}, "venue": {"name": "The Fillmore", "address": "1805 Geary Blvd"}}`, id, name, id, start)
}

func newTestJSONAPIParser(t *testing.T, api SourceAPI) (*JSONAPIParser, *HTTPFetcher) {
	t.Helper()
	resolver, err := timezone.NewResolver("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	fetcher := NewHTTPFetcher(FetcherOptions{Timeout: 5 * time.Second, RetryCount: 0})
	return NewJSONAPIParser(fetcher, api, resolver, func() time.Time { return apiNow }, 60), fetcher
}

func TestJSONAPIParserStopsPagingAtCutoff(t *testing.T) {
	api := &ticketingAPI{pages: map[string]string{
		"0": `{"total": 5, "events": [` + apiEvent("1", "Opening Night", "2026-02-10T20:00:00") + `,` + apiEvent("2", "Jazz Trio", "2026-02-20T20:00:00") + `]}`,
		"1": `{"total": 5, "events": [` + apiEvent("3", "Spring Gala", "2026-03-20T19:00:00") + `,` + apiEvent("4", "Summer Tour", "2026-06-01T19:00:00") + `]}`,
		"2": `{"total": 5, "events": [` + apiEvent("5", "Fall Tour", "2026-09-01T19:00:00") + `]}`,
	}}
	server := httptest.NewServer(api.handler("page"))
	defer server.Close()

	parser, fetcher := newTestJSONAPIParser(t, SourceAPI{
		Items:     "events",
		PageParam: "page",
		Fields: APIFields{
			Title:           "name",
			Start:           "dates.start",
			LocationName:    "venue.name",
			LocationAddress: "venue.address",
		},
	})

	first, err := fetcher.Get(context.Background(), server.URL+"/events?page=0")
	if err != nil {
		t.Fatal(err)
	}

	records, err := parser.Parse(context.Background(), first)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("Expected 4 records from two pages, got %d", len(records))
	}
	if got := api.requested(); len(got) != 2 || got[1] != "1" {
		t.Errorf("Expected pages 0 and 1 only, got %v", got)
	}

	jazz := records[1]
	if jazz.Title != "Jazz Trio" || jazz.NaturalKey != "2" {
		t.Errorf("Expected Jazz Trio with key 2, got %q / %q", jazz.Title, jazz.NaturalKey)
	}
	if jazz.StartAt.Text != "2026-02-20T20:00:00" {
		t.Errorf("Expected start kept as civil text, got %v", jazz.StartAt)
	}
	if jazz.SourceURL != "https://tickets.example.com/e/2" {
		t.Errorf("Expected item url, got '%s'", jazz.SourceURL)
	}
	if jazz.LocationName != "The Fillmore" || jazz.LocationAddress != "1805 Geary Blvd" {
		t.Errorf("Expected venue fields, got %q / %q", jazz.LocationName, jazz.LocationAddress)
	}
}

func TestJSONAPIParserOffsetPaging(t *testing.T) {
	api := &ticketingAPI{pages: map[string]string{
		"0": `[` + apiEvent("1", "A", "2026-02-10T20:00:00Z") + `,` + apiEvent("2", "B", "2026-02-11T20:00:00Z") + `]`,
		"2": `[` + apiEvent("3", "C", "2026-02-12T20:00:00Z") + `]`,
		"4": `[]`,
	}}
	server := httptest.NewServer(api.handler("offset"))
	defer server.Close()

	parser, fetcher := newTestJSONAPIParser(t, SourceAPI{
		OffsetParam: "offset",
		SizeParam:   "limit",
		PageSize:    2,
		Fields:      APIFields{Title: "name", Start: "dates.start"},
	})

	first, err := fetcher.Get(context.Background(), server.URL+"/v1/venues/42/events?offset=0&limit=2")
	if err != nil {
		t.Fatal(err)
	}

	records, err := parser.Parse(context.Background(), first)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}
	want := []string{"0", "2", "4"}
	got := api.requested()
	if len(got) != len(want) {
		t.Fatalf("Expected offsets %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected offsets %v, got %v", want, got)
			break
		}
	}
}

func TestJSONAPIParserKeepsEarlierPagesOnFailure(t *testing.T) {
	api := &ticketingAPI{pages: map[string]string{
		"0": `{"events": [` + apiEvent("1", "Opening Night", "2026-02-10T20:00:00") + `]}`,
	}}
	server := httptest.NewServer(api.handler("page"))
	defer server.Close()

	parser, fetcher := newTestJSONAPIParser(t, SourceAPI{
		Items:     "events",
		PageParam: "page",
		MaxPages:  5,
		Fields:    APIFields{Title: "name", Start: "dates.start"},
	})

	first, err := fetcher.Get(context.Background(), server.URL+"/events")
	if err != nil {
		t.Fatal(err)
	}

	records, err := parser.Parse(context.Background(), first)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected the first page to survive, got %d records", len(records))
	}
	if got := api.requested(); len(got) != 2 {
		t.Errorf("Expected paging to stop after the failed page, got %v", got)
	}
}

func TestJSONAPIParserMaxPages(t *testing.T) {
	pages := make(map[string]string)
	for i := 0; i < 10; i++ {
		pages[strconv.Itoa(i)] = `{"events": [` + apiEvent(strconv.Itoa(i), "Show", "2026-02-10T20:00:00") + `]}`
	}
	api := &ticketingAPI{pages: pages}
	server := httptest.NewServer(api.handler("page"))
	defer server.Close()

	parser, fetcher := newTestJSONAPIParser(t, SourceAPI{
		Items:     "events",
		PageParam: "page",
		MaxPages:  3,
		Fields:    APIFields{Title: "name", Start: "dates.start"},
	})

	first, err := fetcher.Get(context.Background(), server.URL+"/events")
	if err != nil {
		t.Fatal(err)
	}

	records, err := parser.Parse(context.Background(), first)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records from 3 pages, got %d", len(records))
	}
}

func TestJSONAPIParserItemZone(t *testing.T) {
	parser, _ := newTestJSONAPIParser(t, SourceAPI{
		Fields: APIFields{Title: "name", Start: "start", Zone: "timeZone"},
	})

	body := `[{"name": "Away Game", "start": "2026-02-10T19:00:00", "timeZone": "America/New_York"},
		{"name": "Home Game", "start": "2026-02-11T19:00:00"}]`

	records, err := parser.Parse(context.Background(), Payload{URL: "https://tickets.example.com/api", Body: []byte(body)})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	away := records[0].StartAt
	if want := "2026-02-11T00:00:00Z"; away.Instant.Format(time.RFC3339) != want {
		t.Errorf("Expected away game resolved in its own zone to %s, got %v", want, away)
	}
	if records[1].StartAt.Text != "2026-02-11T19:00:00" {
		t.Errorf("Expected home game left as civil text, got %v", records[1].StartAt)
	}
	if records[1].SourceURL != "https://tickets.example.com/api" {
		t.Errorf("Expected page URL fallback, got '%s'", records[1].SourceURL)
	}
}

func TestJSONAPIParserRejectsMalformedFirstPage(t *testing.T) {
	parser, _ := newTestJSONAPIParser(t, SourceAPI{Items: "events"})

	if _, err := parser.Parse(context.Background(), Payload{Body: []byte(`<html>`)}); err == nil {
		t.Error("Expected error for non-JSON body")
	}
	if _, err := parser.Parse(context.Background(), Payload{Body: []byte(`{"events": {"a": 1}}`)}); err == nil {
		t.Error("Expected error when items path is not an array")
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"artists": []any{map[string]any{"name": "Headliner"}},
		"id":      float64(1234567890123),
		"tba":     true,
	}

	cases := map[string]string{
		"artists.0.name": "Headliner",
		"artists.1.name": "",
		"artists.x":      "",
		"id":             "1234567890123",
		"tba":            "true",
		"missing.path":   "",
	}
	for path, want := range cases {
		if got := lookupString(doc, path); got != want {
			t.Errorf("Expected %q for %s, got %q", want, path, got)
		}
	}
}
