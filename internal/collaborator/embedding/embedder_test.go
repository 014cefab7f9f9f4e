package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func embeddingServer(t *testing.T, vector []float32, capture *embeddingRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		response := map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vector}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
}

func TestEmbed(t *testing.T) {
	t.Run("Returns the vector for the input text", func(t *testing.T) {
		var captured embeddingRequest
		server := embeddingServer(t, []float32{0.1, 0.2, 0.3}, &captured)
		defer server.Close()

		embedder := NewHttpEmbedder(server.URL, "test-model", 3, time.Second, zap.NewNop())
		vector, err := embedder.Embed(context.Background(), "Endpoint: /api/users")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
		assert.Equal(t, []string{"Endpoint: /api/users"}, captured.Input)
		assert.Equal(t, "test-model", captured.Model)
	})

	t.Run("Rejects a vector of the wrong dimension", func(t *testing.T) {
		server := embeddingServer(t, []float32{0.1, 0.2}, nil)
		defer server.Close()

		embedder := NewHttpEmbedder(server.URL, "test-model", 3, time.Second, zap.NewNop())
		_, err := embedder.Embed(context.Background(), "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension mismatch")
	})

	t.Run("Fails on a non-200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		embedder := NewHttpEmbedder(server.URL, "test-model", 3, time.Second, zap.NewNop())
		_, err := embedder.Embed(context.Background(), "text")
		assert.Error(t, err)
	})
}

func TestLogText(t *testing.T) {
	entry := pipelineModel.LogEntry{
		Endpoint:   "/api/orders",
		Method:     "POST",
		StatusCode: 500,
		Latency:    1800,
		Error:      "database connection lost",
	}

	t.Run("Includes error and analysis when present", func(t *testing.T) {
		text := LogText(entry, "checkout is degraded")
		assert.Equal(
			t,
			"Endpoint: /api/orders | Method: POST | Status: 500 | Latency: 1800ms | "+
				"Error: database connection lost | Analysis: checkout is degraded",
			text,
		)
	})

	t.Run("Omits empty optional fields", func(t *testing.T) {
		plain := entry
		plain.Error = ""
		text := LogText(plain, "")
		assert.Equal(t, "Endpoint: /api/orders | Method: POST | Status: 500 | Latency: 1800ms", text)
	})
}
