package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ecommate/internal/generation"
	"ecommate/internal/vision"
)

// LLMConfig configures the chat models used by the vision and generation stages.
type LLMConfig struct {
	Type              string  `yaml:"type"`
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	VisionModel       string  `yaml:"vision_model"`
	Temperature       float32 `yaml:"temperature"`
	VisionTemperature float32 `yaml:"vision_temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	VisionMaxTokens   int     `yaml:"vision_max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
}

// APIKey reads the key from the configured environment variable.
func (c LLMConfig) APIKey() string { return os.Getenv(c.APIKeyEnv) }

func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Path     string          `yaml:"path"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig points at a PostgreSQL database with the vector extension.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// DatasetConfig locates the reference table.
type DatasetConfig struct {
	Path          string `yaml:"path"`
	ContentColumn string `yaml:"content_column"`
	StyleColumn   string `yaml:"style_column"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// StylePreset is a named copy style offered to users, with a short hint.
type StylePreset struct {
	Name string `yaml:"name" json:"name"`
	Tip  string `yaml:"tip" json:"tip"`
}

type ServerConfig struct {
	Addr               string `yaml:"addr"`
	TempDir            string `yaml:"temp_dir"`
	SessionTTLMinutes  int    `yaml:"session_ttl_minutes"`
	RejectUnrecognized bool   `yaml:"reject_unrecognized"`
	MaxUploadMB        int    `yaml:"max_upload_mb"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Dataset     DatasetConfig     `yaml:"dataset"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Styles      []StylePreset     `yaml:"styles"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ecommate/config.yaml.
// If neither exists, it writes defaults to ~/.config/ecommate/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv lets the process environment override endpoint and model names.
func (c *AppConfig) ApplyEnv() {
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL_NAME"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("VISION_MODEL_NAME"); v != "" {
		c.LLM.VisionModel = v
	}
}

// Validate rejects combinations that cannot work at runtime.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "tfidf":
		// TF-IDF vectors only make sense next to the vocabulary they were built
		// with, which only the disk and memory stores keep.
		if t := c.VectorStore.Type; t != "disk" && t != "memory" {
			return fmt.Errorf("embedder tfidf requires vector_store disk or memory, got %q", t)
		}
	case "openai":
	default:
		return fmt.Errorf("unknown embedder type %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "disk":
		if c.VectorStore.Path == "" {
			return errors.New("vector_store.path is required for the disk store")
		}
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("vector_store.qdrant.url is required")
		}
	case "pgvector":
		if c.VectorStore.PGVector == nil || os.Getenv(c.VectorStore.PGVector.DSNEnv) == "" {
			return errors.New("vector_store.pgvector.dsn_env must name a set environment variable")
		}
	default:
		return fmt.Errorf("unknown vector_store type %q", c.VectorStore.Type)
	}
	if c.Retrieval.TopK < 0 {
		return errors.New("retrieval.top_k must not be negative")
	}
	if len(c.Styles) == 0 {
		return errors.New("at least one style preset is required")
	}
	return nil
}

// StyleNames lists the preset names in order.
func (c *AppConfig) StyleNames() []string {
	names := make([]string, len(c.Styles))
	for i, s := range c.Styles {
		names[i] = s.Name
	}
	return names
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ecommate", "config.yaml"), nil
}

func defaultStyles() []StylePreset {
	return []StylePreset{
		{Name: "lifestyle seeding note", Tip: "Emoji-rich, first-person, highlights the real-life experience."},
		{Name: "marketplace listing", Tip: "Leads with specs and selling points, clear and conversion-focused."},
		{Name: "private circle post", Tip: "Friendly and casual, reads like a recommendation to friends."},
		{Name: "livestream script", Tip: "Energetic spoken style with urgency and calls to action."},
	}
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "disk"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "dashscope"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "DASHSCOPE_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "qwen-plus"
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = "qwen-vl-max"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = generation.Temperature
	}
	if cfg.LLM.VisionTemperature == 0 {
		cfg.LLM.VisionTemperature = vision.Temperature
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = generation.MaxTokens
	}
	if cfg.LLM.VisionMaxTokens == 0 {
		cfg.LLM.VisionMaxTokens = vision.MaxTokens
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "DASHSCOPE_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-v3"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "disk"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./vector_db"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "style_examples"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if p := cfg.VectorStore.PGVector; p != nil {
		if p.DSNEnv == "" {
			p.DSNEnv = "DATABASE_URL"
		}
		if p.Table == "" {
			p.Table = "style_examples"
		}
	}

	if cfg.Dataset.Path == "" {
		cfg.Dataset.Path = filepath.Join("data", "styles.csv")
	}
	if cfg.Dataset.ContentColumn == "" {
		cfg.Dataset.ContentColumn = "content"
	}
	if cfg.Dataset.StyleColumn == "" {
		cfg.Dataset.StyleColumn = "style"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if len(cfg.Styles) == 0 {
		cfg.Styles = defaultStyles()
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.TempDir == "" {
		cfg.Server.TempDir = "temp"
	}
	if cfg.Server.SessionTTLMinutes == 0 {
		cfg.Server.SessionTTLMinutes = 60
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 10
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join("logs", "ecommate.log")
	}
}
