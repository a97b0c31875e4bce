package cfg

type Cfg struct {
	// HTTP server
	Port string

	// Scraping configuration
	SiteOrigin    string
	SelectorsFile string
	OutputDir     string
	UserAgent     string
	WorkerCount   int
	SkipDownloads bool
	SearchDate    string

	// Application metadata
	Debug   bool
	Version string
}
