// Package config loads runtime settings from defaults, an optional YAML
// file and VERSEGEST_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables: storage.db_path is read from
// VERSEGEST_STORAGE_DB_PATH.
const EnvPrefix = "VERSEGEST"

type Config struct {
	// Storage
	DBPath       string
	ArtifactRoot string

	// Artifacts
	CompressAbove int
	InlineLimit   int

	// Chunking
	ChunkMaxTokens      int
	ChunkHardCap        int
	TranscriptMaxTokens int
	TranscriptWindow    time.Duration

	// Reference resolver
	ResolverMemo int

	// Embedding
	EmbedBackend     string // "hashing", "http" or "none"
	EmbedEndpoint    string
	EmbedAPIKey      string
	EmbedModel       string
	EmbedDimensions  int
	EmbedCacheSize   int
	EmbedBatchSize   int
	EmbedMaxAttempts int
	EmbedRetryUnit   time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// URL fetch
	AllowedSchemes     []string
	AllowedHosts       []string
	BlockedHosts       []string
	BlockedCIDRs       []string
	AllowPrivate       bool
	MaxRedirects       int
	MaxFetchAttempts   int
	FetchRetryUnit     time.Duration
	FetchTimeout       time.Duration
	MaxFetchBytes      int64
	VideoHosts         []string
	TranscriptEndpoint string
	TranscriptAPIKey   string

	// Retrieval
	LexicalProvider string // "fts5", "bleve", "substring" or "none"
	FusionAlpha     float64
	CandidateSlack  int
	DefaultK        int
	SnippetChars    int

	// Annotations
	PathstoreURL    string
	PathstoreAPIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Logging
	LogFormat string // "json" or "text"
	LogLevel  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.db_path", "versegest.db")
	v.SetDefault("storage.artifact_root", "artifacts")

	v.SetDefault("artifacts.compress_above", 64<<10)
	v.SetDefault("artifacts.inline_limit", 2<<10)

	v.SetDefault("chunk.max_tokens", 512)
	v.SetDefault("chunk.hard_cap", 1024)
	v.SetDefault("chunk.transcript_max_tokens", 400)
	v.SetDefault("chunk.transcript_window", 2*time.Minute)

	v.SetDefault("resolver.memo", 4096)

	v.SetDefault("embed.backend", "hashing")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.dimensions", 256)
	v.SetDefault("embed.cache_size", 4096)
	v.SetDefault("embed.batch_size", 64)
	v.SetDefault("embed.max_attempts", 3)
	v.SetDefault("embed.retry_unit", time.Second)
	v.SetDefault("embed.breaker_threshold", 5)
	v.SetDefault("embed.breaker_cooldown", 30*time.Second)

	v.SetDefault("fetch.allowed_schemes", []string{"http", "https"})
	v.SetDefault("fetch.allowed_hosts", []string{})
	v.SetDefault("fetch.blocked_hosts", []string{})
	v.SetDefault("fetch.blocked_cidrs", []string{})
	v.SetDefault("fetch.allow_private", false)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.retry_unit", time.Second)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", 52428800) // 50MB
	v.SetDefault("fetch.video_hosts", []string{"youtube.com", "*.youtube.com", "youtu.be", "vimeo.com", "*.vimeo.com"})
	v.SetDefault("fetch.transcript_endpoint", "")
	v.SetDefault("fetch.transcript_api_key", "")

	v.SetDefault("retrieval.lexical", "fts5")
	v.SetDefault("retrieval.alpha", 0.5)
	v.SetDefault("retrieval.slack", 10)
	v.SetDefault("retrieval.k", 10)
	v.SetDefault("retrieval.snippet_chars", 280)

	v.SetDefault("pathstore.url", "")
	v.SetDefault("pathstore.api_key", "")

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.max_queue", 100)
	v.SetDefault("workers.job_ttl", time.Hour)

	v.SetDefault("pdf.fallback_pdftotext", true)

	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
}

// Load reads configuration. configFile may be empty, in which case
// ./versegest.yaml is used when present.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("versegest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := Config{
		DBPath:       v.GetString("storage.db_path"),
		ArtifactRoot: v.GetString("storage.artifact_root"),

		CompressAbove: v.GetInt("artifacts.compress_above"),
		InlineLimit:   v.GetInt("artifacts.inline_limit"),

		ChunkMaxTokens:      v.GetInt("chunk.max_tokens"),
		ChunkHardCap:        v.GetInt("chunk.hard_cap"),
		TranscriptMaxTokens: v.GetInt("chunk.transcript_max_tokens"),
		TranscriptWindow:    v.GetDuration("chunk.transcript_window"),

		ResolverMemo: v.GetInt("resolver.memo"),

		EmbedBackend:     strings.ToLower(v.GetString("embed.backend")),
		EmbedEndpoint:    v.GetString("embed.endpoint"),
		EmbedAPIKey:      v.GetString("embed.api_key"),
		EmbedModel:       v.GetString("embed.model"),
		EmbedDimensions:  v.GetInt("embed.dimensions"),
		EmbedCacheSize:   v.GetInt("embed.cache_size"),
		EmbedBatchSize:   v.GetInt("embed.batch_size"),
		EmbedMaxAttempts: v.GetInt("embed.max_attempts"),
		EmbedRetryUnit:   v.GetDuration("embed.retry_unit"),
		BreakerThreshold: v.GetInt("embed.breaker_threshold"),
		BreakerCooldown:  v.GetDuration("embed.breaker_cooldown"),

		AllowedSchemes:     list(v, "fetch.allowed_schemes"),
		AllowedHosts:       list(v, "fetch.allowed_hosts"),
		BlockedHosts:       list(v, "fetch.blocked_hosts"),
		BlockedCIDRs:       list(v, "fetch.blocked_cidrs"),
		AllowPrivate:       v.GetBool("fetch.allow_private"),
		MaxRedirects:       v.GetInt("fetch.max_redirects"),
		MaxFetchAttempts:   v.GetInt("fetch.max_attempts"),
		FetchRetryUnit:     v.GetDuration("fetch.retry_unit"),
		FetchTimeout:       v.GetDuration("fetch.timeout"),
		MaxFetchBytes:      v.GetInt64("fetch.max_bytes"),
		VideoHosts:         list(v, "fetch.video_hosts"),
		TranscriptEndpoint: v.GetString("fetch.transcript_endpoint"),
		TranscriptAPIKey:   v.GetString("fetch.transcript_api_key"),

		LexicalProvider: strings.ToLower(v.GetString("retrieval.lexical")),
		FusionAlpha:     v.GetFloat64("retrieval.alpha"),
		CandidateSlack:  v.GetInt("retrieval.slack"),
		DefaultK:        v.GetInt("retrieval.k"),
		SnippetChars:    v.GetInt("retrieval.snippet_chars"),

		PathstoreURL:    v.GetString("pathstore.url"),
		PathstoreAPIKey: v.GetString("pathstore.api_key"),

		WorkerCount:  v.GetInt("workers.count"),
		MaxQueueSize: v.GetInt("workers.max_queue"),
		JobTTL:       v.GetDuration("workers.job_ttl"),

		PDFFallbackPdftotext: v.GetBool("pdf.fallback_pdftotext"),

		LogFormat: strings.ToLower(v.GetString("log.format")),
		LogLevel:  strings.ToLower(v.GetString("log.level")),
	}
	cfg.clamp()
	return cfg, nil
}

// clamp replaces non-positive numeric settings with their defaults.
func (c *Config) clamp() {
	if c.ChunkMaxTokens <= 0 {
		c.ChunkMaxTokens = 512
	}
	if c.ChunkHardCap <= 0 {
		c.ChunkHardCap = 1024
	}
	if c.TranscriptMaxTokens <= 0 {
		c.TranscriptMaxTokens = 400
	}
	if c.TranscriptWindow <= 0 {
		c.TranscriptWindow = 2 * time.Minute
	}
	if c.ResolverMemo <= 0 {
		c.ResolverMemo = 4096
	}
	if c.EmbedDimensions <= 0 {
		c.EmbedDimensions = 256
	}
	if c.EmbedMaxAttempts <= 0 {
		c.EmbedMaxAttempts = 3
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.MaxFetchAttempts <= 0 {
		c.MaxFetchAttempts = 3
	}
	if c.FetchRetryUnit <= 0 {
		c.FetchRetryUnit = time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.MaxFetchBytes <= 0 {
		c.MaxFetchBytes = 52428800
	}
	if c.CandidateSlack <= 0 {
		c.CandidateSlack = 10
	}
	if c.DefaultK <= 0 {
		c.DefaultK = 10
	}
	if c.SnippetChars <= 0 {
		c.SnippetChars = 280
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	switch c.EmbedBackend {
	case "hashing", "none":
	case "http":
		if c.EmbedEndpoint == "" {
			return fmt.Errorf("embed.endpoint is required for the http backend")
		}
	default:
		return fmt.Errorf("embed.backend must be hashing, http or none, got %q", c.EmbedBackend)
	}
	switch c.LexicalProvider {
	case "fts5", "bleve", "substring", "none":
	default:
		return fmt.Errorf("retrieval.lexical must be fts5, bleve, substring or none, got %q", c.LexicalProvider)
	}
	if c.FusionAlpha < 0 || c.FusionAlpha > 1 {
		return fmt.Errorf("retrieval.alpha must be within [0, 1], got %v", c.FusionAlpha)
	}
	if c.ChunkHardCap < c.ChunkMaxTokens {
		return fmt.Errorf("chunk.hard_cap (%d) is below chunk.max_tokens (%d)", c.ChunkHardCap, c.ChunkMaxTokens)
	}
	if _, err := c.CIDRs(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// CIDRs parses BlockedCIDRs.
func (c Config) CIDRs() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.BlockedCIDRs))
	for _, s := range c.BlockedCIDRs {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("fetch.blocked_cidrs: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// list reads a string list that may come from YAML or from a comma or
// space separated environment variable.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
