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

func TestGeminiProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:embedContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, TaskRetrievalDocument, req.TaskType)
		assert.Equal(t, "hello", req.Content.Parts[0].Text)

		_, _ = w.Write([]byte(`{"embedding":{"values":[0.1,0.2]}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider("secret", "")
	p.BaseURL = srv.URL

	vec, err := p.Generate(context.Background(), "hello", TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestGeminiProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGeminiProvider("secret", "")
	p.BaseURL = srv.URL

	_, err := p.Generate(context.Background(), "hello", TaskRetrievalQuery)
	assert.ErrorContains(t, err, "429")
}

func TestOllamaProvider_NormalisesVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"embedding":[3,4]}`))
	}))
	defer srv.Close()

	vec, err := NewOllamaProvider(srv.URL, "").Generate(context.Background(), "x", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestJinaProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	p := NewJinaProvider("k", "")
	p.baseURL = srv.URL

	vec, err := p.Generate(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}
