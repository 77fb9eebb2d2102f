// Package config handles digest pipeline configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of config.yml.
type Config struct {
	LogLevel    string `yaml:"log_level,omitempty"`    // debug, info, warn, error (default info)
	HistoryPath string `yaml:"history_path,omitempty"` // SQLite digest archive
	RunTimeout  int    `yaml:"run_timeout,omitempty"`  // seconds, whole-run deadline

	Profile  Profile        `yaml:"profile"`
	Sources  SourcesConfig  `yaml:"sources"`
	Verify   VerifyConfig   `yaml:"verify,omitempty"`
	Dedupe   DedupeConfig   `yaml:"dedupe,omitempty"`
	Digest   DigestConfig   `yaml:"digest,omitempty"`
	Email    EmailConfig    `yaml:"email,omitempty"`
	Schedule ScheduleConfig `yaml:"schedule,omitempty"`

	// API keys; environment variables take precedence (see ApplyEnv).
	SummarizerAPIKey string `yaml:"summarizer_api_key,omitempty"`
	SendGridAPIKey   string `yaml:"sendgrid_api_key,omitempty"`
}

// Profile is the weighted keyword taxonomy defining relevance.
type Profile struct {
	Groups          []KeywordGroup     `yaml:"groups"`
	TitleMultiplier float64            `yaml:"title_multiplier,omitempty"` // default 2.0
	MinScore        map[string]float64 `yaml:"min_score,omitempty"`        // per period, 0-1
}

// KeywordGroup is one named group of keywords sharing a weight.
// Negative weights penalize off-topic matches.
type KeywordGroup struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// SourcesConfig configures the catalog adapters.
type SourcesConfig struct {
	ArXiv    ArXivConfig    `yaml:"arxiv"`
	OpenAlex OpenAlexConfig `yaml:"openalex"`
	NBER     NBERConfig     `yaml:"nber"`

	FetchTimeout int `yaml:"fetch_timeout,omitempty"` // seconds per adapter, default 60
}

// ArXivConfig configures the arXiv Atom API adapter.
type ArXivConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Trust      int      `yaml:"trust,omitempty"` // dedup tie-break priority, higher wins
	Categories []string `yaml:"categories,omitempty"`
	MaxResults int      `yaml:"max_results,omitempty"`
}

// OpenAlexConfig configures the OpenAlex REST adapter.
type OpenAlexConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Trust      int      `yaml:"trust,omitempty"`
	Journals   []string `yaml:"journals,omitempty"`
	Mailto     string   `yaml:"mailto,omitempty"` // polite pool address
	MaxResults int      `yaml:"max_results,omitempty"`
}

// NBERConfig configures the working-paper listing adapter.
type NBERConfig struct {
	Enabled    bool `yaml:"enabled"`
	Trust      int  `yaml:"trust,omitempty"`
	MaxResults int  `yaml:"max_results,omitempty"`
}

// VerifyConfig tunes registry verification.
type VerifyConfig struct {
	MaxAttempts    int     `yaml:"max_attempts,omitempty"`    // default 3
	BackoffBaseMS  int     `yaml:"backoff_base_ms,omitempty"` // default 500
	BackoffMaxMS   int     `yaml:"backoff_max_ms,omitempty"`  // default 10000
	Concurrency    int     `yaml:"concurrency,omitempty"`     // registry lookup pool, default 5
	MinSimilarity  float64 `yaml:"min_similarity,omitempty"`  // title match threshold, default 0.9
	RegistryMailto string  `yaml:"registry_mailto,omitempty"`
}

// DedupeConfig tunes duplicate collapsing.
type DedupeConfig struct {
	TitleOverlap float64 `yaml:"title_overlap,omitempty"` // token-set threshold, default 0.9
}

// DigestConfig tunes digest assembly.
type DigestConfig struct {
	MaxEntries     map[string]int `yaml:"max_entries,omitempty"`     // per period
	SummaryTimeout int            `yaml:"summary_timeout,omitempty"` // seconds per entry, default 30
	SummaryModel   string         `yaml:"summary_model,omitempty"`   // text-generation model name
	FallbackLength int            `yaml:"fallback_length,omitempty"` // truncated-abstract chars, default 300
}

// EmailConfig configures digest delivery.
type EmailConfig struct {
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
}

// ScheduleConfig holds cron expressions for periodic runs.
type ScheduleConfig struct {
	Daily  string `yaml:"daily,omitempty"`  // e.g. "0 7 * * *"
	Weekly string `yaml:"weekly,omitempty"` // e.g. "0 8 * * MON"
}

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "paperboy"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// HistoryFile is the default digest archive name.
	HistoryFile = "history.db"
)

// DefaultPath returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/paperboy/config.yml.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads and validates the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(configDir string) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(configDir, HistoryFile)
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 600
	}
	if c.Profile.TitleMultiplier <= 0 {
		c.Profile.TitleMultiplier = 2.0
	}
	if c.Profile.MinScore == nil {
		c.Profile.MinScore = map[string]float64{"daily": 0.1, "weekly": 0.15}
	}
	if c.Sources.FetchTimeout <= 0 {
		c.Sources.FetchTimeout = 60
	}
	if c.Sources.ArXiv.MaxResults <= 0 {
		c.Sources.ArXiv.MaxResults = 100
	}
	if c.Sources.OpenAlex.MaxResults <= 0 {
		c.Sources.OpenAlex.MaxResults = 100
	}
	if c.Sources.NBER.MaxResults <= 0 {
		c.Sources.NBER.MaxResults = 50
	}
	if c.Verify.MaxAttempts <= 0 {
		c.Verify.MaxAttempts = 3
	}
	if c.Verify.BackoffBaseMS <= 0 {
		c.Verify.BackoffBaseMS = 500
	}
	if c.Verify.BackoffMaxMS <= 0 {
		c.Verify.BackoffMaxMS = 10000
	}
	if c.Verify.Concurrency <= 0 {
		c.Verify.Concurrency = 5
	}
	if c.Verify.MinSimilarity <= 0 {
		c.Verify.MinSimilarity = 0.9
	}
	if c.Dedupe.TitleOverlap <= 0 {
		c.Dedupe.TitleOverlap = 0.9
	}
	if c.Digest.MaxEntries == nil {
		c.Digest.MaxEntries = map[string]int{"daily": 15, "weekly": 30}
	}
	if c.Digest.SummaryTimeout <= 0 {
		c.Digest.SummaryTimeout = 30
	}
	if c.Digest.FallbackLength <= 0 {
		c.Digest.FallbackLength = 300
	}
}

// Validate checks the loaded configuration for fatal problems.
// An unusable topical profile is the one configuration error that
// aborts a run; everything else has workable defaults.
func (c *Config) Validate() error {
	positive := 0
	for i, g := range c.Profile.Groups {
		if g.Name == "" {
			return fmt.Errorf("profile group %d must have a name", i+1)
		}
		if g.Weight == 0 {
			return fmt.Errorf("profile group %q must have a non-zero weight", g.Name)
		}
		if len(g.Keywords) == 0 {
			return fmt.Errorf("profile group %q must list at least one keyword", g.Name)
		}
		if g.Weight > 0 {
			positive++
		}
	}
	if positive == 0 {
		return fmt.Errorf("profile must define at least one positively-weighted keyword group")
	}

	for period, score := range c.Profile.MinScore {
		if score < 0 || score > 1 {
			return fmt.Errorf("min_score for %s must be within [0,1], got %g", period, score)
		}
	}
	if !c.Sources.ArXiv.Enabled && !c.Sources.OpenAlex.Enabled && !c.Sources.NBER.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	return nil
}

// ApplyEnv overlays API keys from environment variables.
// Environment takes precedence over config file values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.SummarizerAPIKey = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		c.SendGridAPIKey = v
	}
}

// TrustPriorities returns the configured per-source trust ranks keyed
// by adapter tag.
func (c *Config) TrustPriorities() map[string]int {
	return map[string]int{
		"arxiv":    c.Sources.ArXiv.Trust,
		"openalex": c.Sources.OpenAlex.Trust,
		"nber":     c.Sources.NBER.Trust,
	}
}

// MinScoreFor returns the relevance cutoff for a period, defaulting to
// the daily cutoff for unknown periods.
func (c *Config) MinScoreFor(period string) float64 {
	if s, ok := c.Profile.MinScore[period]; ok {
		return s
	}
	return c.Profile.MinScore["daily"]
}

// MaxEntriesFor returns the digest entry cap for a period.
func (c *Config) MaxEntriesFor(period string) int {
	if n, ok := c.Digest.MaxEntries[period]; ok && n > 0 {
		return n
	}
	return 15
}

// GroupNames returns the profile group names in sorted order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Profile.Groups))
	for _, g := range c.Profile.Groups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}
