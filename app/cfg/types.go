package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	SourcesDir string

	// HTTP server
	Port         string
	APIAccessKey string

	// Ingestion
	Timezone          string
	WindowDays        int
	AdapterTimeout    time.Duration
	RunSchedule       string
	RunOnStart        bool
	FetchTimeout      time.Duration
	DetailConcurrency int
	BrowserEnabled    bool

	// Application metadata
	UserAgent string
	Debug     bool
	Version   string
}
