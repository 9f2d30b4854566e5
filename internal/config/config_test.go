package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, "embeddinggemma", cfg.Ollama.Model)
	assert.Equal(t, "examples.db", cfg.Index.Path)
	assert.Equal(t, 4, cfg.Index.Concurrency)
	assert.Empty(t, cfg.Remote.Provider)
	assert.Equal(t, "cad_examples", cfg.PgVector.Table)
	assert.Equal(t, int32(10), cfg.PgVector.Pool.MaxConns)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 3, cfg.Generation.TopK)
	assert.True(t, cfg.Generation.UseHybrid)
	assert.Equal(t, "STEP", cfg.Generation.Format)
	assert.Equal(t, 20, cfg.Generation.ExecTimeoutSecs)
	assert.Equal(t, "generated_models", cfg.Models.Dir)
	assert.Equal(t, "/static/generated_models", cfg.Models.URLPrefix)
	assert.Equal(t, 24, cfg.Cleanup.MaxAgeHours)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 60, cfg.Monitoring.RealertMins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
llm:
  provider: anthropic
  model: claude-sonnet-4-5
remote:
  provider: pinecone
pinecone:
  host: https://idx.svc.pinecone.io
generation:
  top_k: 5
  use_hybrid: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, "pinecone", cfg.Remote.Provider)
	assert.Equal(t, "https://idx.svc.pinecone.io", cfg.Pinecone.Host)
	assert.Equal(t, 5, cfg.Generation.TopK)
	assert.False(t, cfg.Generation.UseHybrid)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, "cad-examples", cfg.Pinecone.Namespace)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
generation:
  max_attempts: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GENX3D_LOG_LEVEL", "warn")
	t.Setenv("GENX3D_GENERATION_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Generation.MaxAttempts)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GENX3D_SERVER_PORT", "3000")
	t.Setenv("GENX3D_OPENAI_API_KEY", "gsk-test")
	t.Setenv("GENX3D_PGVECTOR_DATABASE_URL", "postgres://localhost/cad")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "gsk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "postgres://localhost/cad", cfg.PgVector.DatabaseURL)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults needed by every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8000
	cfg.LLM.Provider = "openai"
	cfg.OpenAI.APIKey = "gsk-test"
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 768
	cfg.Index.Path = "examples.db"
	cfg.Index.Concurrency = 4
	cfg.Generation.MaxAttempts = 3
	cfg.Models.Dir = "generated_models"
	return cfg
}

func TestValidate_AllModesValid(t *testing.T) {
	for _, mode := range []string{"serve", "generate", "chat", "index", "mcp", "part", "cleanup"} {
		t.Run(mode, func(t *testing.T) {
			assert.NoError(t, validDefaults().Validate(mode))
		})
	}
}

func TestValidate_MissingLLMKey(t *testing.T) {
	cfg := validDefaults()
	cfg.OpenAI.APIKey = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "openai.api_key is required")

	// Indexing never calls the LLM.
	assert.NoError(t, cfg.Validate("index"))
}

func TestValidate_AnthropicProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.LLM.Provider = "anthropic"

	err := cfg.Validate("generate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.api_key is required")

	cfg.Anthropic.APIKey = "sk-ant-key"
	assert.NoError(t, cfg.Validate("generate"))
}

func TestValidate_RemoteProviders(t *testing.T) {
	cfg := validDefaults()
	cfg.Remote.Provider = "pgvector"
	err := cfg.Validate("index")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pgvector.database_url")

	cfg.PgVector.DatabaseURL = "postgres://localhost/cad"
	assert.NoError(t, cfg.Validate("index"))

	cfg.Remote.Provider = "pinecone"
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pinecone.api_key and pinecone.host")

	cfg.Remote.Provider = "weaviate"
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "remote.provider must be")

	// Cleanup touches only the model area.
	assert.NoError(t, cfg.Validate("cleanup"))
}

func TestValidate_Embedding(t *testing.T) {
	cfg := validDefaults()
	cfg.Embedding.Provider = "genai"
	err := cfg.Validate("index")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "genai.api_key")

	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 0
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.dimensions must be positive")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be positive")
}

func TestValidate_MaxAttempts(t *testing.T) {
	cfg := validDefaults()
	cfg.Generation.MaxAttempts = 0

	err := cfg.Validate("generate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "generation.max_attempts")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
