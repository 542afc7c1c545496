package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
	"unicode/utf8"
)

// Embedder turns text into a vector. isQuery selects the retrieval-query
// flavour of the model where the provider distinguishes it.
type Embedder interface {
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
}

type Config struct {
	Provider     string
	OllamaURL    string
	OllamaModel  string
	GeminiAPIKey string
	MaxChars     int
}

// NewEmbedder picks the provider named in cfg and caps its input at cfg.MaxChars.
func NewEmbedder(cfg Config) (Embedder, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	var inner Embedder
	switch cfg.Provider {
	case "ollama", "":
		inner = NewOllamaProvider(client, cfg.OllamaURL, cfg.OllamaModel)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini embedder requires an api key")
		}
		inner = NewGeminiProvider(client, cfg.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return &truncating{inner: inner, maxChars: cfg.MaxChars}, nil
}

type truncating struct {
	inner    Embedder
	maxChars int
}

func (t *truncating) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	return t.inner.Embed(ctx, Truncate(text, t.maxChars), isQuery)
}

// Truncate cuts text to at most maxChars runes. maxChars <= 0 disables it.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}

// normalizeVector scales vec to unit length for cosine distance.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
