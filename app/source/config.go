package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is one source's YAML configuration file.
type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	Settings ConfigSettings `yaml:"settings"`
	Filters  []ConfigFilter `yaml:"filters"`
	Feeds    []ConfigFeed   `yaml:"feeds"` // only used by the feeds source
}

type ConfigSettings struct {
	Enabled        bool `yaml:"enabled"`
	MaxItems       int  `yaml:"max_items"`
	Timeout        int  `yaml:"timeout"` // seconds
	ExtractContent bool `yaml:"extract_content"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"` // "title" or "body"
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type ConfigFeed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ConfigCache loads and caches the per-source YAML files from the sources
// directory.
type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

// Run loads every *.yml file in the sources directory. A missing directory
// is fine: every source then runs with defaults.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sourceName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "source", sourceName, "enabled", config.Settings.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(cc.sourcesDir, sourceName+".yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	config.Name = sourceName

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", sourceName, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sourceName] = &config

	return &config, nil
}

// GetConfig returns the cached config for a source, or permissive defaults
// when no file exists for it.
func (cc *ConfigCache) GetConfig(sourceName string) *Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if config, ok := cc.cache[sourceName]; ok {
		return config
	}
	return &Config{
		Name: sourceName,
		Settings: ConfigSettings{
			Enabled:  true,
			MaxItems: 50,
		},
	}
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func validateConfig(config *Config) error {
	for _, filter := range config.Filters {
		if filter.Field != "title" && filter.Field != "body" {
			return fmt.Errorf("unknown filter field: %s", filter.Field)
		}
	}
	for _, feed := range config.Feeds {
		if feed.URL == "" {
			return fmt.Errorf("feed %q has no URL", feed.Name)
		}
	}
	return nil
}
