// Command fuelrag answers natural-language questions about fuel-sales
// transactions from an already-populated vector index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"fuelrag/internal/config"
	"fuelrag/internal/domain"
	"fuelrag/internal/embedding/local"
	"fuelrag/internal/openai"
	"fuelrag/internal/service"
	"fuelrag/internal/tui"
	"fuelrag/internal/vectorstore/memory"
	"fuelrag/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/fuelrag/config.yaml if not provided)")
	flag.Parse()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}
	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("vector store init failed: %v", err)
	}

	genKey, err := config.APIKey(cfg.Generator.APIKeyEnv)
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}
	gen, err := openai.NewGenerator(openai.GeneratorConfig{
		APIKey:    genKey,
		BaseURL:   cfg.Generator.BaseURL,
		Model:     cfg.Generator.Model,
		MaxTokens: cfg.Generator.MaxTokens,
		Timeout:   time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	overview, err := indexOverview(ctx, store, emb)
	cancel()
	if err != nil {
		log.Fatalf("%v", err)
	}

	svc := service.NewAnswerService(emb, store, gen, service.QueryConfig{
		TopK:          cfg.Query.TopK,
		MinScore:      cfg.Query.MinScore,
		ContextBudget: cfg.Query.ContextBudget,
	})

	m := tui.New(svc, overview)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

// indexOverview verifies the index is populated and compatible before the
// TUI starts, so an unconfigured setup fails with a clear message instead of
// a failed first question.
func indexOverview(ctx context.Context, store domain.VectorStore, emb domain.Embedder) (string, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot reach the vector index: %w", err)
	}
	if count == 0 {
		return "", fmt.Errorf("%w; run fuelrag-ingest first", domain.ErrIndexEmpty)
	}
	schema, err := store.Schema(ctx)
	if err != nil {
		return "", fmt.Errorf("cannot read the index schema: %w", err)
	}
	if schema.EmbeddingModel != "" && schema.EmbeddingModel != emb.Model() {
		return "", fmt.Errorf("%w: index built with %q, configured embedder is %q",
			domain.ErrModelMismatch, schema.EmbeddingModel, emb.Model())
	}
	return fmt.Sprintf("%d transactions indexed (embedding model %s)", count, emb.Model()), nil
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai", "":
		key, err := config.APIKey(cfg.Embedder.OpenAI.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		return openai.NewEmbedder(openai.EmbedderConfig{
			APIKey:     key,
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			Model:      cfg.Embedder.OpenAI.Model,
			Dimensions: cfg.Embedder.OpenAI.Dimensions,
			Timeout:    time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
	case "local":
		dim := 0
		if cfg.Embedder.Local != nil {
			dim = cfg.Embedder.Local.Dimension
		}
		return local.New(dim), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "qdrant", "":
		q := cfg.VectorStore.Qdrant
		apiKey := ""
		if q.APIKeyEnv != "" {
			apiKey = os.Getenv(q.APIKeyEnv)
		}
		return qdrant.New(qdrant.Config{
			URL:        q.URL,
			APIKey:     apiKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
