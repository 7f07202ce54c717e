package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/config"
	"medimate-go/pkg/retry"
)

var testPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func embeddingServer(t *testing.T, failFirst int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// 倒序返回，验证按 index 回填
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), float64(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIClient_CreateEmbeddingsKeepsOrder(t *testing.T) {
	srv, _ := embeddingServer(t, 0)
	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, EmbeddingModel: "test-embed"}, time.Second, testPolicy)

	vectors, err := c.CreateEmbeddings(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{1, 3}, vectors[1])
	assert.Equal(t, []float32{2, 2}, vectors[2])
	assert.Equal(t, "test-embed", c.Model())
}

func TestOpenAIClient_RetriesServerErrors(t *testing.T) {
	srv, calls := embeddingServer(t, 2)
	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, EmbeddingModel: "test-embed"}, time.Second, testPolicy)

	vec, err := c.CreateEmbedding(context.Background(), "paracetamol")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 11}, vec)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestOpenAIClient_EmptyInput(t *testing.T) {
	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:0"}, time.Second, testPolicy)
	vectors, err := c.CreateEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}
