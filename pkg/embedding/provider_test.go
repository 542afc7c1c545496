package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"disabled", "hello", 0, "hello"},
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 5, "hello"},
		{"multibyte", "héllo wörld", 7, "héllo w"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.text, tt.max))
		})
	}
}

func TestOllamaProvider_Embed(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{3, 4}})
	}))
	defer srv.Close()

	embedder, err := NewEmbedder(Config{Provider: "ollama", OllamaURL: srv.URL, OllamaModel: "m", MaxChars: 4})
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), "abcdefgh", true)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vec, 1e-6)

	_, err = embedder.Embed(context.Background(), "doc", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"search_query: abcd", "search_document: doc"}, prompts)
}

func TestGeminiProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "RETRIEVAL_QUERY", req.TaskType)
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2]}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.Client(), "key")
	p.BaseURL = srv.URL
	vec, err := p.Embed(context.Background(), "q", true)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestNewEmbedder_Errors(t *testing.T) {
	_, err := NewEmbedder(Config{Provider: "gemini"})
	assert.Error(t, err)
	_, err = NewEmbedder(Config{Provider: "nope"})
	assert.Error(t, err)
}
