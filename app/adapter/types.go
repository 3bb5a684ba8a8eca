package adapter

// Source kinds understood by Build.
const (
	KindRSS    = "rss"
	KindICS    = "ics"
	KindJSONLD = "jsonld"
	KindHTML   = "html"
	KindJSON   = "json"
)

const (
	FetchHTTP    = "http"
	FetchBrowser = "browser"
)

type SourceConfig struct {
	ID        string          // Derived from filename (without .yml extension)
	Name      string          `yaml:"name"`
	Kind      string          `yaml:"kind"`
	URL       string          `yaml:"url"`
	Settings  SourceSettings  `yaml:"settings"`
	Selectors SourceSelectors `yaml:"selectors"`
	API       SourceAPI       `yaml:"api"`
	Filters   []SourceFilter  `yaml:"filters"`
}

type SourceSettings struct {
	Enabled            bool     `yaml:"enabled"`
	Timeout            int      `yaml:"timeout"`   // seconds, per HTTP request
	MaxItems           int      `yaml:"max_items"` // 0 keeps everything
	Fetch              string   `yaml:"fetch"`     // http or browser
	RatePerSecond      float64  `yaml:"rate_per_second"`
	DetailLimit        int      `yaml:"detail_limit"` // concurrent detail page fetches
	EnrichDescriptions bool     `yaml:"enrich_descriptions"`
	LocationName       string   `yaml:"location_name"`    // default venue label
	LocationAddress    string   `yaml:"location_address"` // default venue address
	Tags               []string `yaml:"tags"`
}

type SourceSelectors struct {
	Link string `yaml:"link"` // CSS selector for detail page links on listing pages
}

// SourceAPI describes a paginated JSON event API. Field values are dotted
// paths into one item, e.g. "dates.start.localDate" or "artists.0.name".
type SourceAPI struct {
	Items       string    `yaml:"items"`        // path to the item array; empty when the body is the array
	PageParam   string    `yaml:"page_param"`   // query parameter carrying the page number
	PageStart   int       `yaml:"page_start"`   // number of the page at url
	OffsetParam string    `yaml:"offset_param"` // query parameter carrying the item offset
	SizeParam   string    `yaml:"size_param"`
	PageSize    int       `yaml:"page_size"`
	MaxPages    int       `yaml:"max_pages"`
	Fields      APIFields `yaml:"fields"`
}

type APIFields struct {
	ID              string `yaml:"id"`
	Title           string `yaml:"title"`
	Start           string `yaml:"start"`
	End             string `yaml:"end"`
	Zone            string `yaml:"zone"` // per-item IANA zone for start values without an offset
	URL             string `yaml:"url"`
	Description     string `yaml:"description"`
	LocationName    string `yaml:"location_name"`
	LocationAddress string `yaml:"location_address"`
}

type SourceFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
