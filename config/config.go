package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for casewatch
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Query     QueryConfig     `mapstructure:"query"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Search    SearchConfig    `mapstructure:"search"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address       string   `mapstructure:"address"`
	SessionSecret string   `mapstructure:"session_secret"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
	SchedulerOn   bool     `mapstructure:"scheduler_enabled"`
	// AdminToken guards operator routes such as manual ingestion. Empty disables them.
	AdminToken string `mapstructure:"admin_token"`
	// SessionsPerMinute limits session creation per client address. Zero means unlimited.
	SessionsPerMinute float64 `mapstructure:"sessions_per_minute"`
	SessionBurst      int     `mapstructure:"session_burst"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.SessionSecret) == "" {
		return fmt.Errorf("server.session_secret required")
	}
	return nil
}

// StorageConfig selects and configures the persistence backends.
type StorageConfig struct {
	Backend      string         `mapstructure:"backend"`       // postgres, file, memory
	CacheBackend string         `mapstructure:"cache_backend"` // postgres, redis, memory, none
	Postgres     PostgresConfig `mapstructure:"postgres"`
	Redis        RedisConfig    `mapstructure:"redis"`
	File         FileConfig     `mapstructure:"file"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "postgres":
		if err := s.Postgres.Validate(); err != nil {
			return err
		}
	case "file":
		if strings.TrimSpace(s.File.DataDir) == "" {
			return fmt.Errorf("storage.file.data_dir required for file backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be one of postgres, file, memory (got %q)", s.Backend)
	}
	switch s.CacheBackend {
	case "postgres":
		if err := s.Postgres.Validate(); err != nil {
			return err
		}
	case "redis":
		if err := s.Redis.Validate(); err != nil {
			return err
		}
	case "memory", "none":
	default:
		return fmt.Errorf("storage.cache_backend must be one of postgres, redis, memory, none (got %q)", s.CacheBackend)
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a connection string from either url or the discrete fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// Enabled reports whether a redis host was configured at all.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// FileConfig contains file storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// IngestConfig drives the scheduled collection runs.
type IngestConfig struct {
	Schedule          string             `mapstructure:"schedule"`
	CanonicalizeLinks bool               `mapstructure:"canonicalize_links"`
	LockTTL           time.Duration      `mapstructure:"lock_ttl"`
	LockFile          string             `mapstructure:"lock_file"`
	MaxAttempts       int                `mapstructure:"max_attempts"`
	Collections       []CollectionConfig `mapstructure:"collections"`
}

// CollectionConfig binds named sources to one persisted collection.
type CollectionConfig struct {
	Name    string   `mapstructure:"name"`
	Sources []string `mapstructure:"sources"`
	Filter  bool     `mapstructure:"filter"`
}

// LockPath is the run lock file used when no redis is configured. It defaults to a hidden file in
// the data directory.
func (c IngestConfig) LockPath(dataDir string) string {
	if p := strings.TrimSpace(c.LockFile); p != "" {
		return p
	}
	if strings.TrimSpace(dataDir) == "" {
		dataDir = "data"
	}
	return filepath.Join(dataDir, ".ingest.lock")
}

func (c IngestConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Collections))
	for _, col := range c.Collections {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return fmt.Errorf("ingest.collections[].name required")
		}
		if strings.ContainsAny(name, `/\.`) {
			return fmt.Errorf("ingest collection name %q must not contain path separators or dots", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("ingest collection %q declared twice", name)
		}
		seen[name] = struct{}{}
		if len(col.Sources) == 0 {
			return fmt.Errorf("ingest collection %q has no sources", name)
		}
	}
	return nil
}

// FeedsConfig declares every named source the ingest collections can reference.
type FeedsConfig struct {
	RSS       []RSSFeedConfig      `mapstructure:"rss"`
	NewsAPI   []NewsAPIConfig      `mapstructure:"newsapi"`
	YouTube   []YouTubeConfig      `mapstructure:"youtube"`
	Generated []GeneratedConfig    `mapstructure:"generated"`
	HTTP      FeedHTTPClientConfig `mapstructure:"http"`
	Policy    SourcePolicyConfig   `mapstructure:"policy"`
}

// RSSFeedConfig is a single syndication feed.
type RSSFeedConfig struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Source string `mapstructure:"source"`
}

// NewsAPIConfig contains NewsAPI settings
type NewsAPIConfig struct {
	Name       string `mapstructure:"name"`
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	Query      string `mapstructure:"query"`
	Language   string `mapstructure:"language"`
	MaxResults int    `mapstructure:"max_results"`
}

// YouTubeConfig lists recent uploads of one channel.
type YouTubeConfig struct {
	Name       string `mapstructure:"name"`
	APIKey     string `mapstructure:"api_key"`
	ChannelID  string `mapstructure:"channel_id"`
	MaxResults int    `mapstructure:"max_results"`
}

// GeneratedConfig asks the analysis collaborator to list recent cases as JSON.
type GeneratedConfig struct {
	Name   string `mapstructure:"name"`
	Prompt string `mapstructure:"prompt"`
	Source string `mapstructure:"source"`
}

// FeedHTTPClientConfig tunes the outbound client shared by the feed sources.
type FeedHTTPClientConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// SourceNames returns every declared source name.
func (f FeedsConfig) SourceNames() map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range f.RSS {
		out[s.Name] = struct{}{}
	}
	for _, s := range f.NewsAPI {
		out[s.Name] = struct{}{}
	}
	for _, s := range f.YouTube {
		out[s.Name] = struct{}{}
	}
	for _, s := range f.Generated {
		out[s.Name] = struct{}{}
	}
	return out
}

// FilterConfig holds the keyword configuration of the relevance filter.
type FilterConfig struct {
	Primary   []string         `mapstructure:"primary"`
	Secondary []string         `mapstructure:"secondary"`
	Derived   []DerivedTagRule `mapstructure:"derived"`
}

// DerivedTagRule maps any of Match (substring) to Tag.
type DerivedTagRule struct {
	Match []string `mapstructure:"match"`
	Tag   string   `mapstructure:"tag"`
}

// Normalize applies the default keyword sets when none are configured.
func (c FilterConfig) Normalize() FilterConfig {
	if len(c.Primary) == 0 {
		c.Primary = append([]string(nil), DefaultPrimaryKeywords...)
	}
	if len(c.Secondary) == 0 {
		c.Secondary = append([]string(nil), DefaultSecondaryKeywords...)
	}
	if len(c.Derived) == 0 {
		c.Derived = append([]DerivedTagRule(nil), DefaultDerivedTags...)
	}
	return c
}

// CacheConfig controls the fingerprint cache.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// QuotaConfig bounds new computations per session.
type QuotaConfig struct {
	Limit      int           `mapstructure:"limit"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

func (q QuotaConfig) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("quota.limit must be > 0")
	}
	if q.SessionTTL <= 0 {
		return fmt.Errorf("quota.session_ttl must be > 0")
	}
	return nil
}

// QueryConfig tunes the query path.
type QueryConfig struct {
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout"`
	SearchLimit     int           `mapstructure:"search_limit"`
	EnrichTop       int           `mapstructure:"enrich_top"`
}

// AnalysisConfig configures the generative analysis collaborator.
type AnalysisConfig struct {
	Provider          string        `mapstructure:"provider"` // openai, gemini, none
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

func (a AnalysisConfig) Validate() error {
	switch a.Provider {
	case "none", "":
		return nil
	case "openai", "gemini":
		if strings.TrimSpace(a.APIKey) == "" {
			return fmt.Errorf("analysis.api_key required for provider %s", a.Provider)
		}
		return nil
	default:
		return fmt.Errorf("analysis.provider must be openai, gemini or none (got %q)", a.Provider)
	}
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // brave, serper, none
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "", "none":
	case "brave":
		if strings.TrimSpace(s.BraveAPIKey) == "" {
			return fmt.Errorf("search.brave_api_key required for provider brave")
		}
	case "serper":
		if strings.TrimSpace(s.SerperAPIKey) == "" {
			return fmt.Errorf("search.serper_api_key required for provider serper")
		}
	default:
		return fmt.Errorf("search.provider must be brave, serper or none (got %q)", s.Provider)
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port cannot be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.scheduler_enabled", true)
	v.SetDefault("server.sessions_per_minute", 6)
	v.SetDefault("server.session_burst", 3)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.cache_backend", "memory")
	v.SetDefault("storage.file.data_dir", "data")
	v.SetDefault("storage.postgres.timeout", 5*time.Second)
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("ingest.schedule", "0 6 * * 1")
	v.SetDefault("ingest.lock_ttl", 10*time.Minute)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("feeds.http.timeout", 20*time.Second)
	v.SetDefault("feeds.http.max_retries", 2)
	v.SetDefault("feeds.http.requests_per_second", 2.0)
	v.SetDefault("quota.limit", 10)
	v.SetDefault("quota.session_ttl", 24*time.Hour)
	v.SetDefault("query.analysis_timeout", 60*time.Second)
	v.SetDefault("query.search_limit", 5)
	v.SetDefault("query.enrich_top", 2)
	v.SetDefault("analysis.provider", "none")
	v.SetDefault("analysis.temperature", 0.2)
	v.SetDefault("analysis.max_tokens", 2048)
	v.SetDefault("analysis.timeout", 90*time.Second)
	v.SetDefault("analysis.max_retries", 2)
	v.SetDefault("analysis.requests_per_second", 1.0)
	v.SetDefault("search.provider", "none")
	v.SetDefault("search.timeout", 10*time.Second)
}

// LoadConfig loads config from file (or the default search path when path is empty) and
// environment variables prefixed with CASEWATCH_.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CASEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Filter = cfg.Filter.Normalize()
	cfg.Feeds.Policy = cfg.Feeds.Policy.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	for _, fn := range []func() error{
		c.Server.Validate,
		c.Storage.Validate,
		c.Ingest.Validate,
		c.Quota.Validate,
		c.Analysis.Validate,
		c.Search.Validate,
		c.Telemetry.Validate,
		c.Feeds.Policy.Validate,
	} {
		if err := fn(); err != nil {
			return err
		}
	}
	sources := c.Feeds.SourceNames()
	for _, col := range c.Ingest.Collections {
		for _, name := range col.Sources {
			if _, ok := sources[name]; !ok {
				return fmt.Errorf("ingest collection %q references unknown source %q", col.Name, name)
			}
		}
	}
	return nil
}
