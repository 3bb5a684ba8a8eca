package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

const maxDescriptionLength = 1000

// Enricher fills in missing descriptions from each record's own page.
type Enricher struct {
	fetcher PageFetcher
	limit   int
}

func NewEnricher(fetcher PageFetcher, limit int) *Enricher {
	if limit <= 0 {
		limit = DefaultDetailLimit
	}
	return &Enricher{fetcher: fetcher, limit: limit}
}

// Run updates records in place. Pages that fail to load leave their record
// unchanged.
func (e *Enricher) Run(ctx context.Context, records []event.RawRecord, listingURL string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)

	for i := range records {
		link := strings.TrimSpace(records[i].SourceURL)
		if records[i].Description != "" || link == "" || link == listingURL {
			continue
		}

		g.Go(func() error {
			detailCtx, cancel := context.WithTimeout(gctx, DetailTimeout)
			defer cancel()

			page, err := e.fetcher.Get(detailCtx, link)
			if err != nil {
				slog.Debug("Enrichment fetch failed", "url", link, "error", err)
				return nil
			}

			description, err := e.describe(page)
			if err != nil {
				slog.Debug("No description extracted", "url", link, "error", err)
				return nil
			}

			records[i].Description = description
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// describe prefers a JSON-LD event description, then the page's meta
// description, then a readability excerpt of the main content.
func (e *Enricher) describe(page Payload) (string, error) {
	if len(page.Body) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, record := range ExtractJSONLDEvents(doc, page.URL) {
		if record.Description != "" {
			return truncate(record.Description), nil
		}
	}

	for _, selector := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
			return truncate(strings.TrimSpace(content)), nil
		}
	}

	pageURL, _ := url.Parse(page.URL)
	article, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.TrimSpace(article.Excerpt)
	if text == "" {
		text = strings.TrimSpace(article.TextContent)
	}
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	return truncate(text), nil
}

func truncate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxDescriptionLength {
		return s
	}
	return string(runes[:maxDescriptionLength]) + "…"
}
