// Command fuelrag-ingest bulk-loads a transaction dataset (CSV) into the
// vector index. Run it before asking questions with fuelrag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fuelrag/internal/config"
	"fuelrag/internal/dataset"
	"fuelrag/internal/domain"
	"fuelrag/internal/embedding/local"
	"fuelrag/internal/openai"
	"fuelrag/internal/service"
	"fuelrag/internal/vectorstore/memory"
	"fuelrag/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, filePath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/fuelrag/config.yaml if not provided)")
	flag.StringVar(&filePath, "file", "", "Path to the transactions CSV file")
	flag.Parse()
	if filePath == "" {
		fmt.Println("Usage: fuelrag-ingest [--config=config.yaml] --file=transactions.csv")
		os.Exit(1)
	}

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

	txs, unreadable, err := dataset.ReadCSVFile(filePath)
	if err != nil {
		log.Fatalf("failed to read dataset: %v", err)
	}
	fmt.Printf("Loaded %s (%d unreadable rows skipped)\n", dataset.Overview(txs), unreadable)

	svc := service.NewIngestService(emb, store, service.IngestConfig{
		BatchSize:  cfg.Ingest.BatchSize,
		Workers:    cfg.Ingest.Workers,
		MaxRetries: cfg.Ingest.MaxRetries,
		RatePerSec: cfg.Ingest.RatePerSec,
	})
	report, err := svc.Ingest(context.Background(), txs)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	fmt.Printf("Ingested %d transactions\n", report.Ingested)
	if len(report.Skipped) > 0 {
		fmt.Printf("Skipped %d malformed records: %s\n", len(report.Skipped), strings.Join(report.Skipped, ", "))
	}
	if len(report.Failed) > 0 {
		fmt.Printf("Failed %d records after retries: %s\n", len(report.Failed), strings.Join(report.Failed, ", "))
		os.Exit(1)
	}
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
