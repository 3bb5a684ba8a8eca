package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/event"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

// RecordParser turns a fetched payload into raw records.
type RecordParser interface {
	Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error)
}

var (
	_ RecordParser = (*RSSParser)(nil)
	_ RecordParser = (*ICSParser)(nil)
	_ RecordParser = (*JSONLDParser)(nil)
	_ RecordParser = (*HTMLParser)(nil)
	_ Adapter      = (*Source)(nil)
)

// Deps carries the process-wide settings adapters are built with.
type Deps struct {
	Resolver          *timezone.Resolver
	UserAgent         string
	FetchTimeout      time.Duration
	DetailConcurrency int
	BrowserEnabled    bool
	WindowDays        int
	Now               func() time.Time
}

// Source is an Adapter driven by a SourceConfig.
type Source struct {
	config   *SourceConfig
	fetcher  PageFetcher
	parser   RecordParser
	filterer *Filterer
	enricher *Enricher
}

func NewSource(config *SourceConfig, fetcher PageFetcher, parser RecordParser) *Source {
	return &Source{
		config:   config,
		fetcher:  fetcher,
		parser:   parser,
		filterer: NewFilterer(),
	}
}

func (s *Source) ID() string {
	return s.config.ID
}

func (s *Source) Name() string {
	return s.config.Name
}

func (s *Source) Config() *SourceConfig {
	return s.config
}

func (s *Source) Fetch(ctx context.Context) (Payload, error) {
	return s.fetcher.Get(ctx, s.config.URL)
}

func (s *Source) Parse(ctx context.Context, payload Payload) ([]event.RawRecord, error) {
	records, err := s.parser.Parse(ctx, payload)
	if err != nil {
		return nil, err
	}

	settings := s.config.Settings
	for i := range records {
		if records[i].LocationName == "" && records[i].LocationAddress == "" {
			records[i].LocationName = settings.LocationName
			records[i].LocationAddress = settings.LocationAddress
		}
		if len(settings.Tags) > 0 {
			records[i].Tags = mergeTags(records[i].Tags, settings.Tags)
		}
	}

	records = s.filterer.Run(records, s.config)

	if settings.MaxItems > 0 && len(records) > settings.MaxItems {
		records = records[:settings.MaxItems]
	}

	if s.enricher != nil {
		if err := s.enricher.Run(ctx, records, payload.URL); err != nil {
			return nil, fmt.Errorf("failed to enrich records: %w", err)
		}
	}

	return records, nil
}

func mergeTags(tags, defaults []string) []string {
	seen := make(map[string]bool, len(tags)+len(defaults))
	merged := make([]string, 0, len(tags)+len(defaults))
	for _, list := range [][]string{tags, defaults} {
		for _, tag := range list {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	return merged
}

// Build constructs the adapter for one source definition.
func Build(config *SourceConfig, deps Deps) (*Source, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}

	timeout := time.Duration(config.Settings.Timeout) * time.Second
	if timeout <= 0 {
		timeout = deps.FetchTimeout
	}

	var fetcher PageFetcher
	switch config.Settings.Fetch {
	case FetchBrowser:
		if !deps.BrowserEnabled {
			return nil, fmt.Errorf("source %s needs browser fetching, which is disabled", config.ID)
		}
		fetcher = NewBrowserFetcher(deps.UserAgent, timeout)
	default:
		fetcher = NewHTTPFetcher(FetcherOptions{
			UserAgent:     deps.UserAgent,
			Timeout:       timeout,
			RetryCount:    DefaultRetryCount,
			RatePerSecond: config.Settings.RatePerSecond,
		})
	}

	detailLimit := config.Settings.DetailLimit
	if detailLimit <= 0 {
		detailLimit = deps.DetailConcurrency
	}

	var parser RecordParser
	switch config.Kind {
	case KindRSS:
		parser = NewRSSParser()
	case KindICS:
		parser = NewICSParser(deps.Resolver, deps.Now, deps.WindowDays)
	case KindJSONLD:
		parser = NewJSONLDParser()
	case KindHTML:
		parser = NewHTMLParser(fetcher, config.Selectors.Link, detailLimit, config.Settings.MaxItems)
	case KindJSON:
		parser = NewJSONAPIParser(fetcher, config.API, deps.Resolver, deps.Now, deps.WindowDays)
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", config.Kind)
	}

	source := NewSource(config, fetcher, parser)
	if config.Settings.EnrichDescriptions {
		source.enricher = NewEnricher(fetcher, detailLimit)
	}

	return source, nil
}

// BuildRegistry builds adapters for the given sources in order. A source that
// cannot be built is logged and left out.
func BuildRegistry(configs []*SourceConfig, deps Deps) *Registry {
	registry := NewRegistry()
	for _, config := range configs {
		source, err := Build(config, deps)
		if err != nil {
			slog.Warn("Failed to build source adapter, skipping", "source", config.ID, "error", err)
			continue
		}
		registry.Register(source)
	}
	return registry
}
