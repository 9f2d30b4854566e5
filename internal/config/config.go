package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/genx3d/genx3d/internal/embedding"
	"github.com/genx3d/genx3d/internal/llm"
	"github.com/genx3d/genx3d/internal/resilience"
	"github.com/genx3d/genx3d/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig           `yaml:"server" mapstructure:"server"`
	Log        LogConfig              `yaml:"log" mapstructure:"log"`
	LLM        llm.Config             `yaml:"llm" mapstructure:"llm"`
	Anthropic  llm.ProviderConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     llm.ProviderConfig     `yaml:"openai" mapstructure:"openai"`
	Embedding  embedding.Config       `yaml:"embedding" mapstructure:"embedding"`
	Ollama     embedding.OllamaConfig `yaml:"ollama" mapstructure:"ollama"`
	GenAI      embedding.GenAIConfig  `yaml:"genai" mapstructure:"genai"`
	Index      IndexConfig            `yaml:"index" mapstructure:"index"`
	Remote     RemoteConfig           `yaml:"remote" mapstructure:"remote"`
	Pinecone   PineconeConfig         `yaml:"pinecone" mapstructure:"pinecone"`
	PgVector   PgVectorConfig         `yaml:"pgvector" mapstructure:"pgvector"`
	Generation GenerationConfig       `yaml:"generation" mapstructure:"generation"`
	Models     ModelsConfig           `yaml:"models" mapstructure:"models"`
	Cleanup    CleanupConfig          `yaml:"cleanup" mapstructure:"cleanup"`
	Resilience resilience.Config      `yaml:"resilience" mapstructure:"resilience"`
	Monitoring MonitoringConfig       `yaml:"monitoring" mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// RequestTimeoutSecs bounds one API request, generation included.
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IndexConfig configures the local example index and corpus.
type IndexConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" mapstructure:"path"`
	// Corpus is a YAML corpus file; empty uses the built-in examples.
	Corpus      string `yaml:"corpus" mapstructure:"corpus"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// RemoteConfig selects the remote vector index.
type RemoteConfig struct {
	// Provider is "", "pgvector" or "pinecone". Empty disables the remote.
	Provider string `yaml:"provider" mapstructure:"provider"`
}

// PineconeConfig holds Pinecone data-plane settings.
type PineconeConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Host      string `yaml:"host" mapstructure:"host"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// PgVectorConfig configures the Postgres remote index.
type PgVectorConfig struct {
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Table       string           `yaml:"table" mapstructure:"table"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// GenerationConfig configures the generation pipeline.
type GenerationConfig struct {
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	TopK        int    `yaml:"top_k" mapstructure:"top_k"`
	UseHybrid   bool   `yaml:"use_hybrid" mapstructure:"use_hybrid"`
	Format      string `yaml:"format" mapstructure:"format"`
	// ExecTimeoutSecs bounds one sandbox run.
	ExecTimeoutSecs int `yaml:"exec_timeout_secs" mapstructure:"exec_timeout_secs"`
}

// ModelsConfig configures the generated-model area.
type ModelsConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	URLPrefix string `yaml:"url_prefix" mapstructure:"url_prefix"`
}

// CleanupConfig configures the stale-model sweeper.
type CleanupConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalMins int  `yaml:"interval_mins" mapstructure:"interval_mins"`
	MaxAgeHours  int  `yaml:"max_age_hours" mapstructure:"max_age_hours"`
}

// MonitoringConfig configures health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MaxModelMB           float64 `yaml:"max_model_mb" mapstructure:"max_model_mb"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowMins   int     `yaml:"lookback_window_mins" mapstructure:"lookback_window_mins"`
	// RealertMins is the minimum gap between two sends of the same alert.
	RealertMins int `yaml:"realert_mins" mapstructure:"realert_mins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GENX3D")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it even when
// the config file omits the section.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.system", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.groq.com/openai/v1")

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.cache_max_bytes", 32<<20)
	v.SetDefault("embedding.cache_ttl_secs", 3600)
	v.SetDefault("ollama.endpoint", "http://localhost:11434")
	v.SetDefault("ollama.model", "embeddinggemma")
	v.SetDefault("genai.api_key", "")
	v.SetDefault("genai.model", "gemini-embedding-001")
	v.SetDefault("genai.task_type", "RETRIEVAL_QUERY")

	v.SetDefault("index.path", "examples.db")
	v.SetDefault("index.corpus", "")
	v.SetDefault("index.concurrency", 4)
	v.SetDefault("remote.provider", "")
	v.SetDefault("pinecone.api_key", "")
	v.SetDefault("pinecone.host", "")
	v.SetDefault("pinecone.namespace", "cad-examples")
	v.SetDefault("pgvector.database_url", "")
	v.SetDefault("pgvector.table", "cad_examples")
	v.SetDefault("pgvector.pool.max_conns", 10)
	v.SetDefault("pgvector.pool.min_conns", 1)

	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.top_k", 3)
	v.SetDefault("generation.use_hybrid", true)
	v.SetDefault("generation.format", "STEP")
	v.SetDefault("generation.exec_timeout_secs", 20)
	v.SetDefault("models.dir", "generated_models")
	v.SetDefault("models.url_prefix", "/static/generated_models")
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.interval_mins", 60)
	v.SetDefault("cleanup.max_age_hours", 24)

	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown_secs", 30)
	v.SetDefault("resilience.call_timeout_secs", 60)

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.max_model_mb", 1024)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_mins", 60)
	v.SetDefault("monitoring.realert_mins", 60)
}

// Validate checks that the configuration is sufficient for the given mode:
// "serve", "generate", "chat", "index", "mcp", "part" or "cleanup".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "serve", "generate", "chat", "index", "mcp", "part", "cleanup":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	var errs []string

	needsLLM := mode == "serve" || mode == "generate" || mode == "chat" || mode == "mcp"
	if needsLLM {
		switch c.LLM.Provider {
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				errs = append(errs, "anthropic.api_key is required when llm.provider is anthropic")
			}
		case "", "openai":
			if c.OpenAI.APIKey == "" {
				errs = append(errs, "openai.api_key is required when llm.provider is openai")
			}
		default:
			errs = append(errs, "llm.provider must be anthropic or openai")
		}
		if c.Generation.MaxAttempts < 1 {
			errs = append(errs, "generation.max_attempts must be at least 1")
		}
	}

	if needsLLM || mode == "index" {
		if c.Embedding.Dimensions <= 0 {
			errs = append(errs, "embedding.dimensions must be positive")
		}
		switch c.Embedding.Provider {
		case "", "hash", "ollama":
		case "genai":
			if c.GenAI.APIKey == "" {
				errs = append(errs, "genai.api_key is required when embedding.provider is genai")
			}
		default:
			errs = append(errs, "embedding.provider must be hash, ollama or genai")
		}
	}

	needsIndex := needsLLM || mode == "index"
	if needsIndex && c.Index.Path == "" {
		errs = append(errs, "index.path is required")
	}
	if mode == "index" && c.Index.Concurrency < 1 {
		errs = append(errs, "index.concurrency must be at least 1")
	}

	if needsIndex {
		switch c.Remote.Provider {
		case "":
		case "pgvector":
			if c.PgVector.DatabaseURL == "" {
				errs = append(errs, "pgvector.database_url is required when remote.provider is pgvector")
			}
		case "pinecone":
			if c.Pinecone.APIKey == "" || c.Pinecone.Host == "" {
				errs = append(errs, "pinecone.api_key and pinecone.host are required when remote.provider is pinecone")
			}
		default:
			errs = append(errs, "remote.provider must be empty, pgvector or pinecone")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be positive")
	}
	if mode != "index" && c.Models.Dir == "" {
		errs = append(errs, "models.dir is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config validation failed for %s mode: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
