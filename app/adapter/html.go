package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/ckubal/mc-adventure-finder/app/event"
)

const DetailTimeout = 8 * time.Second

// HTMLParser follows detail links on a listing page and reads the JSON-LD
// events of each detail page. Detail pages are fetched with bounded
// concurrency; a failing page only loses its own events.
type HTMLParser struct {
	fetcher      PageFetcher
	linkSelector string
	limit        int
	maxLinks     int
}

func NewHTMLParser(fetcher PageFetcher, linkSelector string, limit, maxLinks int) *HTMLParser {
	if limit <= 0 {
		limit = DefaultDetailLimit
	}
	return &HTMLParser{
		fetcher:      fetcher,
		linkSelector: linkSelector,
		limit:        limit,
		maxLinks:     maxLinks,
	}
}

func (p *HTMLParser) Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	links := p.detailLinks(doc, payload.URL)
	if p.maxLinks > 0 && len(links) > p.maxLinks {
		links = links[:p.maxLinks]
	}

	results := make([][]event.RawRecord, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	for i, link := range links {
		g.Go(func() error {
			detailCtx, cancel := context.WithTimeout(gctx, DetailTimeout)
			defer cancel()

			detail, err := p.fetcher.Get(detailCtx, link)
			if err != nil {
				slog.Debug("Detail page fetch failed", "url", link, "error", err)
				return nil
			}

			detailDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(detail.Body))
			if err != nil {
				slog.Debug("Detail page parse failed", "url", link, "error", err)
				return nil
			}

			records := ExtractJSONLDEvents(detailDoc, link)
			for j := range records {
				if records[j].SourceURL == "" || records[j].SourceURL == payload.URL {
					records[j].SourceURL = link
				}
			}
			results[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []event.RawRecord
	for _, r := range results {
		records = append(records, r...)
	}

	return records, nil
}

// detailLinks returns absolute, de-duplicated link targets in page order.
func (p *HTMLParser) detailLinks(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)

	seen := make(map[string]bool)
	var links []string

	doc.Find(p.linkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		ref.Fragment = ""

		link := ref.String()
		if seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	return links
}
