// Package config loads feed generator configuration. Values come from the
// built-in defaults, then an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cayyus/engineerverse/internal/taxonomy"
)

// Config holds all engineerverse configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Feed     FeedConfig     `koanf:"feed"`
	Bluesky  BlueskyConfig  `koanf:"bluesky"`
	Curation CurationConfig `koanf:"curation"`
	Taxonomy taxonomy.Table `koanf:"taxonomy"`
}

type ServerConfig struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`
}

type LogConfig struct {
	Env string `koanf:"env"` // "production" switches to JSON output
}

type StoreConfig struct {
	Path string `koanf:"path"` // ":memory:" keeps the ledger in-process
}

type FeedConfig struct {
	ServiceDID   string `koanf:"service_did"`
	Hostname     string `koanf:"hostname"`
	PublisherDID string `koanf:"publisher_did"` // empty: the logged-in account
	RecordName   string `koanf:"record_name"`
	DisplayName  string `koanf:"display_name"`
	Description  string `koanf:"description"`
}

type BlueskyConfig struct {
	Host              string `koanf:"host"`
	Identifier        string `koanf:"identifier"`
	Password          string `koanf:"password"`
	TimeoutSeconds    int    `koanf:"timeout_seconds"`
	SessionTTLMinutes int    `koanf:"session_ttl_minutes"`
}

type CurationConfig struct {
	CacheDurationSeconds int     `koanf:"cache_duration_seconds"`
	DecayFactor          float64 `koanf:"decay_factor"`
	RecoveryFactor       float64 `koanf:"recovery_factor"`
	BatchSize            int     `koanf:"batch_size"`
	DefaultLimit         int     `koanf:"default_limit"`
	MaxLimit             int     `koanf:"max_limit"`
	SearchHardCap        int     `koanf:"search_hard_cap"`
	SearchTimeoutSeconds int     `koanf:"search_timeout_seconds"`
}

// Validation errors.
var (
	ErrInvalidPort          = errors.New("server.port must be between 1 and 65535")
	ErrInvalidCacheDuration = errors.New("curation.cache_duration_seconds must be at least 1")
	ErrInvalidDecay         = errors.New("curation.decay_factor must be in (0, 1)")
	ErrInvalidRecovery      = errors.New("curation.recovery_factor must be positive")
	ErrInvalidBatchSize     = errors.New("curation.batch_size must be at least 1")
	ErrInvalidLimits        = errors.New("curation.default_limit must be between 1 and curation.max_limit")
	ErrInvalidHardCap       = errors.New("curation.search_hard_cap must be at least 1")
	ErrInvalidSearchTimeout = errors.New("curation.search_timeout_seconds must be at least 1")
	ErrInvalidServiceDID    = errors.New("feed.service_did must be a did")
	ErrMissingHostname      = errors.New("feed.hostname is required")
	ErrMissingRecordName    = errors.New("feed.record_name is required")
	ErrEmptyTaxonomy        = errors.New("taxonomy.terms must not be empty")
)

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Env: "development",
		},
		Store: StoreConfig{
			Path: ":memory:",
		},
		Feed: FeedConfig{
			ServiceDID:  "did:web:cayyus-bskyfeed-gen.onrender.com",
			Hostname:    "cayyus-bskyfeed-gen.onrender.com",
			RecordName:  "Engineerverse",
			DisplayName: "Engineerverse by Cayyus",
			Description: "Includes engineering content, programming and software development and other science and math related stuff",
		},
		Bluesky: BlueskyConfig{
			Host:              "https://bsky.social",
			TimeoutSeconds:    30,
			SessionTTLMinutes: 90,
		},
		Curation: CurationConfig{
			CacheDurationSeconds: 300,
			DecayFactor:          0.3,
			RecoveryFactor:       0.2,
			BatchSize:            8,
			DefaultLimit:         50,
			MaxLimit:             100,
			SearchHardCap:        100,
			SearchTimeoutSeconds: 10,
		},
		Taxonomy: taxonomy.Default(),
	}
}

// keyDelim separates koanf key paths. Hashtags such as "#node.js" are map
// keys under taxonomy.multipliers, so "." cannot be used.
const keyDelim = "::"

// Load reads the optional YAML file at path over the defaults, applies
// environment overrides and validates. Validation problems are returned
// together; a file that cannot be read or parsed is reported alone.
func Load(path string) (*Config, []error) {
	k := koanf.New(keyDelim)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("load config file %s: %w", path, err)}
		}
	}

	cfg := Default()
	defaults := cfg.Taxonomy
	cfg.Taxonomy = taxonomy.Table{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, []error{fmt.Errorf("decode config: %w", err)}
	}
	cfg.Taxonomy = mergeTable(defaults, cfg.Taxonomy)

	var errs []error
	if err := applyEnv(&cfg); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, cfg.Validate()...)
	return &cfg, errs
}

// mergeTable overlays file-provided taxonomy entries on the defaults. A
// non-empty term list replaces the default catalogue outright.
func mergeTable(base, override taxonomy.Table) taxonomy.Table {
	out := taxonomy.Table{
		Categories:  make(map[string]float64, len(base.Categories)),
		Multipliers: make(map[string]float64, len(base.Multipliers)),
		Terms:       base.Terms,
	}
	for k, v := range base.Categories {
		out.Categories[k] = v
	}
	for k, v := range override.Categories {
		out.Categories[k] = v
	}
	for k, v := range base.Multipliers {
		out.Multipliers[k] = v
	}
	for k, v := range override.Multipliers {
		out.Multipliers[k] = v
	}
	if len(override.Terms) > 0 {
		out.Terms = override.Terms
	}
	return out
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Bind, "FEEDGEN_BIND")
	setString(&cfg.Log.Env, "FEEDGEN_ENV")
	setString(&cfg.Store.Path, "FEEDGEN_DB")
	setString(&cfg.Feed.ServiceDID, "FEEDGEN_SERVICE_DID")
	setString(&cfg.Feed.Hostname, "FEEDGEN_HOSTNAME")
	setString(&cfg.Feed.PublisherDID, "FEEDGEN_PUBLISHER_DID")
	setString(&cfg.Bluesky.Host, "BLUESKY_HOST")
	setString(&cfg.Bluesky.Identifier, "BLUESKY_USERNAME")
	setString(&cfg.Bluesky.Password, "BLUESKY_PASSWORD")

	for _, key := range []string{"FEEDGEN_PORT", "PORT"} {
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
		}
		cfg.Server.Port = port
		break
	}
	return nil
}

func setString(dst *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	cur := c.Curation
	if cur.CacheDurationSeconds < 1 {
		errs = append(errs, ErrInvalidCacheDuration)
	}
	if cur.DecayFactor <= 0 || cur.DecayFactor >= 1 {
		errs = append(errs, ErrInvalidDecay)
	}
	if cur.RecoveryFactor <= 0 {
		errs = append(errs, ErrInvalidRecovery)
	}
	if cur.BatchSize < 1 {
		errs = append(errs, ErrInvalidBatchSize)
	}
	if cur.MaxLimit < 1 || cur.DefaultLimit < 1 || cur.DefaultLimit > cur.MaxLimit {
		errs = append(errs, ErrInvalidLimits)
	}
	if cur.SearchHardCap < 1 {
		errs = append(errs, ErrInvalidHardCap)
	}
	if cur.SearchTimeoutSeconds < 1 {
		errs = append(errs, ErrInvalidSearchTimeout)
	}
	if !strings.HasPrefix(c.Feed.ServiceDID, "did:") {
		errs = append(errs, ErrInvalidServiceDID)
	}
	if c.Feed.Hostname == "" {
		errs = append(errs, ErrMissingHostname)
	}
	if c.Feed.RecordName == "" {
		errs = append(errs, ErrMissingRecordName)
	}
	if len(c.Taxonomy.Terms) == 0 {
		errs = append(errs, ErrEmptyTaxonomy)
	}
	return errs
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Publisher is the repo DID the feed record lives under: PublisherDID when
// set, otherwise the service DID.
func (f FeedConfig) Publisher() string {
	if f.PublisherDID != "" {
		return f.PublisherDID
	}
	return f.ServiceDID
}

// CacheDuration is the batch window length.
func (c CurationConfig) CacheDuration() time.Duration {
	return time.Duration(c.CacheDurationSeconds) * time.Second
}

// SearchTimeout bounds each search provider call.
func (c CurationConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// Timeout is the HTTP client timeout for XRPC calls.
func (c BlueskyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SessionTTL is how long a createSession result is reused.
func (c BlueskyConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}
