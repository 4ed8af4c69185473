package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecommate/internal/generation"
	"ecommate/internal/vision"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "dashscope", cfg.LLM.Type)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
	assert.Equal(t, "qwen-vl-max", cfg.LLM.VisionModel)
	assert.InDelta(t, generation.Temperature, cfg.LLM.Temperature, 1e-6)
	assert.InDelta(t, vision.Temperature, cfg.LLM.VisionTemperature, 1e-6)
	assert.Equal(t, generation.MaxTokens, cfg.LLM.MaxTokens)
	assert.Equal(t, vision.MaxTokens, cfg.LLM.VisionMaxTokens)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "disk", cfg.VectorStore.Type)
	assert.Equal(t, "./vector_db", cfg.VectorStore.Path)
	assert.Equal(t, filepath.Join("data", "styles.csv"), cfg.Dataset.Path)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Len(t, cfg.Styles, 4)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  type: openai
  model: gpt-4o-mini
embedder:
  type: openai
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
styles:
  - name: haiku
    tip: five seven five
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "qwen-vl-max", cfg.LLM.VisionModel)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-v3", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "style_examples", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, []string{"haiku"}, cfg.StyleNames())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [oops"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 5
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "http://proxy/v1")
	t.Setenv("LLM_MODEL_NAME", "qwen-max")
	t.Setenv("VISION_MODEL_NAME", "")

	cfg := defaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "http://proxy/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "qwen-max", cfg.LLM.Model)
	assert.Equal(t, "qwen-vl-max", cfg.LLM.VisionModel)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"tfidf with qdrant": func(c *AppConfig) {
			c.VectorStore.Type = "qdrant"
			c.VectorStore.Qdrant = &QdrantConfig{URL: "http://q"}
		},
		"unknown embedder":   func(c *AppConfig) { c.Embedder.Type = "bert" },
		"unknown store":      func(c *AppConfig) { c.VectorStore.Type = "chroma" },
		"negative top_k":     func(c *AppConfig) { c.Retrieval.TopK = -1 },
		"no styles":          func(c *AppConfig) { c.Styles = nil },
		"disk without path":  func(c *AppConfig) { c.VectorStore.Path = "" },
		"qdrant without url": func(c *AppConfig) { c.Embedder.Type = "openai"; c.VectorStore.Type = "qdrant" },
		"pgvector without dsn": func(c *AppConfig) {
			c.Embedder.Type = "openai"
			c.VectorStore.Type = "pgvector"
			c.VectorStore.PGVector = &PGVectorConfig{DSNEnv: "ECOMMATE_TEST_UNSET_DSN"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
