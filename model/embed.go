package model

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
)

// Embedder maps text to a fixed-size vector. Both the indexer and the
// retriever go through this interface, so providers are swappable without
// touching the pipeline.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedderFromEnv selects the embedding provider from EMBEDDING_PROVIDER
// ("ollama" or "openai", ollama by default).
func NewEmbedderFromEnv() (Embedder, error) {
	provider := os.Getenv("EMBEDDING_PROVIDER")
	switch provider {
	case "", "ollama":
		url := os.Getenv("OLLAMA_EMBEDDING_URL")
		emModel := os.Getenv("OLLAMA_EMBEDDING_MODEL")
		log.Printf("[EMBEDDER] using Ollama embeddings (%s)", emModel)
		return NewOllamaEmbedder(url, emModel), nil
	case "openai":
		client, err := NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:   os.Getenv("OPENAI_BASE_URL"),
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     os.Getenv("OPENAI_EMBEDDING_MODEL"),
		})
		if err != nil {
			return nil, err
		}
		log.Printf("[EMBEDDER] using OpenAI-compatible embeddings (%s)", client.model)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// normalize rescales vec to unit length so cosine similarity reduces to a
// dot product.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = float32(float64(x) / norm)
	}
	return vec
}
