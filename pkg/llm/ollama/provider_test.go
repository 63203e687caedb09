package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_ReadsNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)

		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	out, err := llm.Collect(context.Background(), NewOllamaProvider(srv.URL), "hi", "llama3")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestStream_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"par"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"error":"model crashed"}`+"\n")
	}))
	defer srv.Close()

	out, err := llm.Collect(context.Background(), NewOllamaProvider(srv.URL), "hi", "llama3")
	assert.EqualError(t, err, "model crashed")
	assert.Equal(t, "par", out)
}

func TestStream_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"par"},"done":false}`+"\n")
	}))
	defer srv.Close()

	_, err := llm.Collect(context.Background(), NewOllamaProvider(srv.URL), "hi", "llama3")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStream_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := llm.Collect(context.Background(), NewOllamaProvider(srv.URL), "hi", "nope")
	assert.ErrorContains(t, err, "status 404")
}
