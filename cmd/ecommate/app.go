package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ecommate/internal/config"
	"ecommate/internal/embedding"
	"ecommate/internal/embedding/openai"
	"ecommate/internal/embedding/tfidf"
	"ecommate/internal/generation"
	"ecommate/internal/index"
	"ecommate/internal/llm"
	"ecommate/internal/logger"
	"ecommate/internal/pipeline"
	"ecommate/internal/pipeline/steps"
	"ecommate/internal/retrieval"
	"ecommate/internal/vectorstore"
	"ecommate/internal/vectorstore/disk"
	"ecommate/internal/vectorstore/memory"
	"ecommate/internal/vectorstore/pgvector"
	"ecommate/internal/vectorstore/qdrant"
	"ecommate/internal/vision"
)

// app holds the assembled components shared by the subcommands.
type app struct {
	cfg      *config.AppConfig
	log      logger.Logger
	index    *index.Manager
	pipeline *pipeline.Pipeline
	registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

func loadConfig() (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			return nil, fmt.Errorf("embedder.openai section is required for the openai embedder")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
}

func buildStore(ctx context.Context, cfg *config.AppConfig) (vectorstore.Storage, func(), error) {
	noop := func() {}
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), noop, nil
	case "disk":
		return disk.NewStorage(cfg.VectorStore.Path), noop, nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), noop, nil
	case "pgvector":
		p := cfg.VectorStore.PGVector
		pool, err := pgvector.Connect(ctx, os.Getenv(p.DSNEnv))
		if err != nil {
			return nil, nil, fmt.Errorf("connect pgvector: %w", err)
		}
		return pgvector.NewStorage(pool, p.Table), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
}

// newIndexApp assembles config, logging and the similarity index only.
func newIndexApp(ctx context.Context, log logger.Logger, cfg *config.AppConfig) (*app, error) {
	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	source := index.CSVSource(cfg.Dataset.Path, cfg.Dataset.ContentColumn, cfg.Dataset.StyleColumn)
	return &app{
		cfg:      cfg,
		log:      log,
		index:    index.NewManager(emb, store, source, log),
		registry: prometheus.NewRegistry(),
		closers:  []func(){closeStore},
	}, nil
}

func newCompleter(ctx context.Context, cfg config.LLMConfig, modelName string, temperature float32, maxTokens int) (*llm.Completer, error) {
	mt := llm.NewModelType(cfg.Type)
	if mt == llm.ModelTypeUnknown {
		return nil, fmt.Errorf("unknown llm type %q", cfg.Type)
	}
	key := cfg.APIKey()
	if key == "" && mt.NeedsAPIKey() {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	cm, err := llm.NewChatModel(ctx, llm.ModelConfig{
		APIType:     mt,
		BaseURL:     cfg.BaseURL,
		APIKey:      key,
		ModelName:   modelName,
		Temperature: &temperature,
		MaxTokens:   maxTokens,
		Timeout:     cfg.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", modelName, err)
	}
	return llm.NewCompleter(cm, temperature, maxTokens), nil
}

// newApp assembles the full vision -> retrieval -> generation pipeline.
func newApp(ctx context.Context, log logger.Logger, cfg *config.AppConfig) (*app, error) {
	a, err := newIndexApp(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	visionClient, err := newCompleter(ctx, cfg.LLM, cfg.LLM.VisionModel, cfg.LLM.VisionTemperature, cfg.LLM.VisionMaxTokens)
	if err != nil {
		a.Close()
		return nil, err
	}
	textClient, err := newCompleter(ctx, cfg.LLM, cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = pipeline.New(log, pipeline.NewMetrics(a.registry), steps.Default(
		vision.NewAnalyzer(visionClient, log),
		retrieval.NewRetriever(a.index, log),
		generation.NewWriter(textClient, log),
		cfg.Retrieval.TopK,
	)...)
	return a, nil
}

func newLogger(cfg *config.AppConfig) logger.Logger {
	return logger.New(cfg.Log.File, cfg.Log.Production)
}
