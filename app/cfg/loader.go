package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	DefaultWindowDays     = 90
	DefaultAdapterTimeout = 25 * time.Second
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/events.db" description:"SQLite database file (:memory: for a throwaway store)"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Ingestion
	Timezone          string `long:"timezone" env:"TZ" default:"America/Los_Angeles" description:"Zone for times given without an offset"`
	WindowDays        string `long:"window-days" env:"SCRAPE_WINDOW_DAYS" default:"90" description:"Days ahead of now to keep events for"`
	AdapterTimeoutMs  int    `long:"adapter-timeout-ms" env:"ADAPTER_TIMEOUT_MS" default:"25000" description:"Per-adapter time limit in milliseconds"`
	RunSchedule       string `long:"run-schedule" env:"RUN_SCHEDULE" description:"Cron expression for scheduled ingestion (disabled when empty)"`
	RunOnStart        bool   `long:"run-on-start" env:"RUN_ON_START" description:"Run one ingestion as soon as the scheduler starts"`
	FetchTimeout      int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"HTTP fetch timeout in seconds"`
	DetailConcurrency int    `long:"detail-concurrency" env:"DETAIL_CONCURRENCY" default:"5" description:"Parallel detail page fetches per source"`
	BrowserEnabled    bool   `long:"browser" env:"BROWSER_ENABLED" description:"Allow sources that need a headless browser"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Adventure Finder/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads .env (when present), then environment variables and flags.
// Variables already set in the environment win over .env.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := parse(os.Args[1:])
	if err != nil || cfg == nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	adapterTimeout := time.Duration(raw.AdapterTimeoutMs) * time.Millisecond
	if adapterTimeout <= 0 {
		adapterTimeout = DefaultAdapterTimeout
	}

	return &Cfg{
		DBPath:            raw.DBPath,
		SourcesDir:        raw.SourcesDir,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		Timezone:          raw.Timezone,
		WindowDays:        windowDays(raw.WindowDays),
		AdapterTimeout:    adapterTimeout,
		RunSchedule:       strings.TrimSpace(raw.RunSchedule),
		RunOnStart:        raw.RunOnStart,
		FetchTimeout:      time.Duration(raw.FetchTimeout) * time.Second,
		DetailConcurrency: raw.DetailConcurrency,
		BrowserEnabled:    raw.BrowserEnabled,
		UserAgent:         raw.UserAgent,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}, nil
}

// windowDays falls back to the default for anything that is not a positive
// integer.
func windowDays(value string) int {
	days, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || days <= 0 {
		return DefaultWindowDays
	}
	return days
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
