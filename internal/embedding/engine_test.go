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

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestFindTopK(t *testing.T) {
	corpus := [][]float32{
		{0, 1},
		{1, 0},
		{1, 1},
		{1, 2, 3}, // wrong dimension, skipped
	}
	got := FindTopK([]float32{1, 0}, corpus, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
	assert.Greater(t, got[0].Similarity, got[1].Similarity)
}

func TestNewEngine_None(t *testing.T) {
	for _, p := range []string{"", "none"} {
		e, err := NewEngine(Config{Provider: p})
		require.NoError(t, err)
		assert.Nil(t, e)
	}
}

func TestNewEngine_Unsupported(t *testing.T) {
	_, err := NewEngine(Config{Provider: "chroma"})
	assert.Error(t, err)
}

func TestNewEngine_GenAIRequiresKey(t *testing.T) {
	_, err := NewEngine(Config{Provider: "genai"})
	assert.Error(t, err)
}

func TestOllamaEngine_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embeddinggemma", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, float32(len(req.Prompt))}})
	}))
	defer srv.Close()

	e, err := NewEngine(Config{Provider: "ollama", OllamaEndpoint: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "ollama:embeddinggemma", e.Name())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "abc"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0][2])
	assert.Equal(t, float32(3), vecs[1][2])
}

func TestOllamaEngine_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
