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

// Config holds all configuration for the content engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or text
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// AdminJWTSecret guards /ingest when set.
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
	UploadMaxBytes int64  `mapstructure:"upload_max_bytes"`
}

// LLMConfig describes the OpenAI-compatible completion/embedding provider.
type LLMConfig struct {
	Type            string        `mapstructure:"type"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	// StageModels overrides CompletionModel per stage name (e.g. "finalizer").
	StageModels map[string]string `mapstructure:"stage_models"`
}

// ModelFor returns the completion model configured for a stage.
func (l LLMConfig) ModelFor(stage string) string {
	if m := strings.TrimSpace(l.StageModels[stage]); m != "" {
		return m
	}
	return l.CompletionModel
}

func (l LLMConfig) Validate() error {
	switch l.Type {
	case "openai":
	default:
		return fmt.Errorf("llm.type %q not supported", l.Type)
	}
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2]")
	}
	return nil
}

// AgentsConfig contains stage execution settings
type AgentsConfig struct {
	StageTimeout  time.Duration `mapstructure:"stage_timeout"`
	GroundingTopK int           `mapstructure:"grounding_top_k"`
}

func (a AgentsConfig) Validate() error {
	if a.StageTimeout <= 0 {
		return fmt.Errorf("agents.stage_timeout must be > 0")
	}
	if a.GroundingTopK < 0 {
		return fmt.Errorf("agents.grounding_top_k cannot be negative")
	}
	return nil
}

// KnowledgeConfig controls the grounding corpus and its indexes.
type KnowledgeConfig struct {
	CorpusDir string `mapstructure:"corpus_dir"`
	// DSN of the vector index database; empty means storage.postgres.
	DSN                 string `mapstructure:"dsn"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	ReingestCron        string `mapstructure:"reingest_cron"`
}

func (k KnowledgeConfig) Validate() error {
	if strings.TrimSpace(k.CorpusDir) == "" {
		return fmt.Errorf("knowledge.corpus_dir required")
	}
	if k.EmbeddingDimensions <= 0 {
		return fmt.Errorf("knowledge.embedding_dimensions must be > 0")
	}
	return nil
}

// SourcesConfig contains research source configurations
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider   string             `mapstructure:"provider"` // brave, serper or empty to disable
	APIKey     string             `mapstructure:"api_key"`
	MaxResults int                `mapstructure:"max_results"`
	FetchPages int                `mapstructure:"fetch_pages"`
	Fetcher    string             `mapstructure:"fetcher"` // http or chromedp
	Timeout    time.Duration      `mapstructure:"timeout"`
	Policy     SourcePolicyConfig `mapstructure:"policy"`
}

// Enabled reports whether a search provider is configured.
func (w WebSearchConfig) Enabled() bool {
	return strings.TrimSpace(w.Provider) != "" && strings.TrimSpace(w.APIKey) != ""
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "", "brave", "serper":
	default:
		return fmt.Errorf("sources.web_search.provider %q not supported", w.Provider)
	}
	switch w.Fetcher {
	case "", "http", "chromedp":
	default:
		return fmt.Errorf("sources.web_search.fetcher %q not supported", w.Fetcher)
	}
	return w.Policy.Validate()
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings. Redis is optional; without
// it ingest serialization is process-local.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr is host:port.
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
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

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.OTLPEndpoint) == "" {
		return fmt.Errorf("telemetry.otlp_endpoint required when telemetry is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "json")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.admin_jwt_secret", "")
	v.SetDefault("server.upload_max_bytes", int64(32<<20))
	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.completion_model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("agents.stage_timeout", "90s")
	v.SetDefault("agents.grounding_top_k", 5)
	v.SetDefault("knowledge.corpus_dir", "knowledge")
	v.SetDefault("knowledge.dsn", "")
	v.SetDefault("knowledge.embedding_dimensions", 1536)
	v.SetDefault("knowledge.reingest_cron", "")
	v.SetDefault("sources.web_search.provider", "")
	v.SetDefault("sources.web_search.api_key", "")
	v.SetDefault("sources.web_search.max_results", 5)
	v.SetDefault("sources.web_search.fetch_pages", 2)
	v.SetDefault("sources.web_search.fetcher", "http")
	v.SetDefault("sources.web_search.timeout", "20s")
	v.SetDefault("storage.redis.host", "")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.timeout", "10s")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "aeoengine")
}

// Load reads the JSON config file and AEO_* environment overrides. An empty
// path searches ./config, the working directory and the executable's
// directory; a missing file there is not an error.
func Load(path string) (*Config, error) {
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

	v.SetEnvPrefix("AEO")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.LLM.Validate,
		c.Agents.Validate,
		c.Knowledge.Validate,
		c.Sources.WebSearch.Validate,
		c.Storage.Redis.Validate,
		c.Storage.Postgres.Validate,
		c.Telemetry.Validate,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
