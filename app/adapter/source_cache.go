package adapter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSourceTimeout = 15
	DefaultDetailLimit   = 5
	DefaultMaxPages      = 25
)

// SourceCache loads source definitions from *.yml files. The file name
// without extension is the source id.
type SourceCache struct {
	sourcesDir string
	cache      map[string]*SourceConfig
	mu         sync.RWMutex
}

func NewSourceCache(sourcesDir string) *SourceCache {
	return &SourceCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*SourceConfig),
	}
}

func (sc *SourceCache) Run() error {
	if _, err := os.Stat(sc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(sc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sourceID := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := sc.LoadConfig(sourceID)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "source", sourceID, "kind", config.Kind, "enabled", config.Settings.Enabled)
	}

	return nil
}

func (sc *SourceCache) LoadConfig(sourceID string) (*SourceConfig, error) {
	configFile := sc.getConfigFilePath(sourceID)
	sourceConfig, err := sc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	sourceConfig.ID = sourceID
	if sourceConfig.Name == "" {
		sourceConfig.Name = sourceID
	}

	if err := sc.validateConfig(sourceConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[sourceConfig.ID] = sourceConfig

	return sourceConfig, nil
}

func (sc *SourceCache) GetConfig(sourceID string) (*SourceConfig, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	sourceConfig, ok := sc.cache[sourceID]
	if !ok {
		return nil, fmt.Errorf("source config with id '%s' not found", sourceID)
	}
	return sourceConfig, nil
}

func (sc *SourceCache) GetConfigs() map[string]*SourceConfig {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	configsCopy := make(map[string]*SourceConfig, len(sc.cache))
	for k, v := range sc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledConfigs returns enabled sources sorted by id.
func (sc *SourceCache) GetEnabledConfigs() []*SourceConfig {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	enabledConfigs := make([]*SourceConfig, 0, len(sc.cache))
	for _, v := range sc.cache {
		if v.Settings.Enabled {
			enabledConfigs = append(enabledConfigs, v)
		}
	}
	sort.Slice(enabledConfigs, func(i, j int) bool {
		return enabledConfigs[i].ID < enabledConfigs[j].ID
	})
	return enabledConfigs
}

func (sc *SourceCache) GetConfigCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

func (sc *SourceCache) parseConfig(configFile string) (*SourceConfig, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourceConfig SourceConfig
	if err := yaml.Unmarshal(data, &sourceConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	sourceConfig.Kind = strings.ToLower(strings.TrimSpace(sourceConfig.Kind))

	if sourceConfig.Settings.Timeout == 0 {
		sourceConfig.Settings.Timeout = DefaultSourceTimeout
	}
	if sourceConfig.Settings.Fetch == "" {
		sourceConfig.Settings.Fetch = FetchHTTP
	}
	if sourceConfig.Settings.DetailLimit == 0 {
		sourceConfig.Settings.DetailLimit = DefaultDetailLimit
	}
	if sourceConfig.Kind == KindJSON {
		applyAPIDefaults(&sourceConfig.API)
	}

	return &sourceConfig, nil
}

func (sc *SourceCache) validateConfig(sourceConfig *SourceConfig) error {
	if sourceConfig == nil {
		return fmt.Errorf("sourceConfig is nil")
	}

	requiredFields := map[string]string{
		"source id":   sourceConfig.ID,
		"source URL":  sourceConfig.URL,
		"source kind": sourceConfig.Kind,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	validKinds := map[string]bool{
		KindRSS:    true,
		KindICS:    true,
		KindJSONLD: true,
		KindHTML:   true,
		KindJSON:   true,
	}
	if !validKinds[sourceConfig.Kind] {
		return fmt.Errorf("invalid source kind: %s", sourceConfig.Kind)
	}

	if sourceConfig.Kind == KindHTML && sourceConfig.Selectors.Link == "" {
		return fmt.Errorf("link selector is required for html sources")
	}

	if sourceConfig.Kind == KindJSON {
		if err := validateAPI(&sourceConfig.API); err != nil {
			return err
		}
	}

	if sourceConfig.Settings.Fetch != FetchHTTP && sourceConfig.Settings.Fetch != FetchBrowser {
		return fmt.Errorf("invalid fetch mode: %s", sourceConfig.Settings.Fetch)
	}

	nonNegativeFields := map[string]float64{
		"timeout":         float64(sourceConfig.Settings.Timeout),
		"max items":       float64(sourceConfig.Settings.MaxItems),
		"detail limit":    float64(sourceConfig.Settings.DetailLimit),
		"rate per second": sourceConfig.Settings.RatePerSecond,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	for i, filter := range sourceConfig.Filters {
		if !validFilterFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}

func (sc *SourceCache) getConfigFilePath(sourceID string) string {
	return filepath.Join(sc.sourcesDir, sourceID+".yml")
}

func applyAPIDefaults(api *SourceAPI) {
	if api.MaxPages == 0 {
		api.MaxPages = DefaultMaxPages
	}
	if api.Fields.ID == "" {
		api.Fields.ID = "id"
	}
	if api.Fields.Title == "" {
		api.Fields.Title = "title"
	}
	if api.Fields.Start == "" {
		api.Fields.Start = "start"
	}
	if api.Fields.URL == "" {
		api.Fields.URL = "url"
	}
}

func validateAPI(api *SourceAPI) error {
	if api.PageParam != "" && api.OffsetParam != "" {
		return fmt.Errorf("page_param and offset_param are mutually exclusive")
	}
	if api.OffsetParam != "" && api.PageSize <= 0 {
		return fmt.Errorf("page_size is required with offset_param")
	}
	if api.MaxPages < 0 || api.PageSize < 0 || api.PageStart < 0 {
		return fmt.Errorf("api paging values must be non-negative")
	}
	return nil
}
