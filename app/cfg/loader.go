package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	Port string `long:"port" env:"PORT" default:"3001" description:"HTTP server port"`

	SiteOrigin    string `long:"site-origin" env:"SITE_ORIGIN" default:"https://sutra.oslpr.org" description:"Origin used to absolutize relative document links"`
	SelectorsFile string `long:"selectors-file" env:"SELECTORS_FILE" description:"Path to a selectors YAML file (embedded defaults when unset)"`
	OutputDir     string `long:"output-dir" env:"OUTPUT_DIR" default:"scraped_data" description:"Directory holding the document cache"`
	UserAgent     string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36" description:"User agent string for HTTP requests"`
	WorkerCount   int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of concurrent document download workers"`
	SkipDownloads bool   `long:"no-extract" env:"SKIP_DOWNLOADS" description:"Return document metadata only, never download files"`

	SearchDate string `long:"search-date" env:"SEARCH_DATE" description:"Search for bills filed on this date (YYYY-MM-DD), print JSON and exit"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Args struct {
		URL string `positional-arg-name:"url" description:"Run the pipeline once for this bill URL and print JSON"`
	} `positional-args:"yes"`
}

var globalCfg *Cfg

// OneShotURL holds the positional bill URL when the process is invoked in
// one-shot mode instead of as a server.
var oneShotURL string

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:          raw.Port,
		SiteOrigin:    raw.SiteOrigin,
		SelectorsFile: raw.SelectorsFile,
		OutputDir:     raw.OutputDir,
		UserAgent:     raw.UserAgent,
		WorkerCount:   raw.WorkerCount,
		SkipDownloads: raw.SkipDownloads,
		SearchDate:    raw.SearchDate,
		Debug:         raw.Debug,
		Version:       GetVersion(),
	}

	oneShotURL = raw.Args.URL
	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// OneShotURL returns the positional URL argument, empty in server mode.
func OneShotURL() string {
	return oneShotURL
}
