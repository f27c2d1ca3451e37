// Package config provides configuration loading and structs for the torikomi pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Source     SourceConfig     `yaml:"source"`
	Paths      PathsConfig      `yaml:"paths"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	OCR        OCRConfig        `yaml:"ocr"`
	Server     ServerConfig     `yaml:"server"`
}

// SourceConfig describes the content store to ingest from.
type SourceConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
}

// PathsConfig holds locations for persisted state and caches.
type PathsConfig struct {
	StatePath        string `yaml:"state_path"`
	ListingCachePath string `yaml:"listing_cache_path"`
	EnrichmentCache  string `yaml:"enrichment_cache_path"`
}

// PipelineConfig holds run-level settings.
type PipelineConfig struct {
	Workers           int `yaml:"workers"`
	ProgressEvery     int `yaml:"progress_every"`
	CacheTTLMinutes   int `yaml:"cache_ttl_minutes"`
	RunTimeoutMinutes int `yaml:"run_timeout_minutes"` // 0 = no global timeout
}

// RunTimeout returns the configured global run timeout, or 0 when disabled.
func (p *PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(p.RunTimeoutMinutes) * time.Minute
}

// CacheTTL returns the listing cache time-to-live.
func (p *PipelineConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLMinutes) * time.Minute
}

// ExtractionConfig holds acceptance thresholds for the extraction chain.
type ExtractionConfig struct {
	SidecarThreshold float64 `yaml:"sidecar_threshold"`
	DirectThreshold  float64 `yaml:"direct_threshold"`
	OCRThreshold     float64 `yaml:"ocr_threshold"`
}

// EnrichmentConfig holds external enrichment service settings.
type EnrichmentConfig struct {
	SummarizeEnabled *bool   `yaml:"summarize_enabled"`
	EntitiesEnabled  *bool   `yaml:"entities_enabled"`
	Host             string  `yaml:"host"`
	Model            string  `yaml:"model"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	RetryMaxAttempts int     `yaml:"retry_max_attempts"`
	RetryBaseDelayMs int     `yaml:"retry_base_delay_ms"`
	MaxChunkChars    int     `yaml:"max_chunk_chars"`
	ChunkOverlap     int     `yaml:"chunk_overlap_chars"`
	DefaultCostUnits float64 `yaml:"default_cost_units"`
}

// SummarizeOrDefault returns whether summarization is enabled; defaults to true when unset.
func (e *EnrichmentConfig) SummarizeOrDefault() bool {
	if e.SummarizeEnabled != nil {
		return *e.SummarizeEnabled
	}
	return true
}

// EntitiesOrDefault returns whether entity extraction is enabled; defaults to true when unset.
func (e *EnrichmentConfig) EntitiesOrDefault() bool {
	if e.EntitiesEnabled != nil {
		return *e.EntitiesEnabled
	}
	return true
}

// Timeout returns the per-call enrichment timeout.
func (e *EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the initial backoff delay between retry attempts.
func (e *EnrichmentConfig) RetryBaseDelay() time.Duration {
	return time.Duration(e.RetryBaseDelayMs) * time.Millisecond
}

// OCRConfig holds optical recognition engine settings.
type OCRConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Rasterizer     string `yaml:"rasterizer"` // e.g. pdftoppm
	Engine         string `yaml:"engine"`     // e.g. tesseract
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DPI            int    `yaml:"dpi"`
}

// Timeout returns the per-invocation engine timeout.
func (o *OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Source.Root = expandPath(cfg.Source.Root, configDir)
	cfg.Paths.StatePath = expandPath(cfg.Paths.StatePath, configDir)
	cfg.Paths.ListingCachePath = expandPath(cfg.Paths.ListingCachePath, configDir)
	cfg.Paths.EnrichmentCache = expandPath(cfg.Paths.EnrichmentCache, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
