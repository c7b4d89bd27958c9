package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Sources fingerprint-match cookie origin against request headers, so the
// default User-Agent has to look like the browser that captured the cookies.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./threadhub.db" description:"Path to the SQLite database file"`

	// Application configuration
	SourcesDir        string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing per-source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for refresh tasks"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for write endpoints (optional)"`

	// Outbound request configuration
	UserAgent     string `long:"user-agent" env:"USER_AGENT" description:"User agent string for HTTP requests (defaults to a desktop browser)"`
	HTTPTimeout   int    `long:"http-timeout" env:"HTTP_TIMEOUT" default:"20" description:"Outbound HTTP timeout in seconds"`
	MaxConcurrent int    `long:"max-concurrent" env:"MAX_CONCURRENT" default:"8" description:"Maximum simultaneously in-flight outbound requests"`

	// Summarization service (optional)
	SummaryAPIKey  string `long:"summary-api-key" env:"SUMMARY_API_KEY" description:"API key for the digest summarization service (optional)"`
	SummaryBaseURL string `long:"summary-base-url" env:"SUMMARY_BASE_URL" default:"https://api.openai.com/v1" description:"Base URL of the summarization service"`
	SummaryModel   string `long:"summary-model" env:"SUMMARY_MODEL" default:"gpt-4o-mini" description:"Model used for digest summaries"`

	// Digest freshness windows
	DigestFresh int `long:"digest-fresh" env:"DIGEST_FRESH" default:"1440" description:"Minutes a cached digest stays servable before it must be regenerated"`
	DigestStale int `long:"digest-stale" env:"DIGEST_STALE" default:"240" description:"Minutes after which a served cached digest triggers a background refresh"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Asia/Shanghai)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

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
		DBPath:            raw.DBPath,
		SourcesDir:        raw.SourcesDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         cmp.Or(raw.UserAgent, defaultUserAgent),
		HTTPTimeout:       raw.HTTPTimeout,
		MaxConcurrent:     raw.MaxConcurrent,
		SummaryAPIKey:     raw.SummaryAPIKey,
		SummaryBaseURL:    raw.SummaryBaseURL,
		SummaryModel:      raw.SummaryModel,
		DigestFresh:       raw.DigestFresh,
		DigestStale:       raw.DigestStale,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
