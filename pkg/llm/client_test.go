package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/config"
	"medimate-go/pkg/retry"
)

var testPolicy = retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

type capturedRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type sliceWriter struct{ chunks []string }

func (w *sliceWriter) WriteMessage(_ int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

func TestChatMessages(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Paracetamol"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, ChatModel: "gpt-test"}, time.Second, testPolicy)
	answer, err := c.ChatMessages(context.Background(), []Message{
		{Role: "system", Content: "only answer from context"},
		{Role: "user", Content: "meds name only"},
	}, &GenerationParams{Model: "gpt-extract", Temperature: Float(0)})

	require.NoError(t, err)
	assert.Equal(t, "Paracetamol", answer)
	assert.Equal(t, "gpt-extract", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "meds name only", got.Messages[1].Content)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
}

func TestChatMessages_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, ChatModel: "gpt-test"}, time.Second, testPolicy)
	_, err := c.ChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestStreamChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Take ", "rest."} {
			fmt.Fprintf(w, "data: {\"id\":\"s1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-test\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, ChatModel: "gpt-test"}, time.Second, testPolicy)
	w := &sliceWriter{}
	err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, w)
	require.NoError(t, err)
	assert.Equal(t, "Take rest.", strings.Join(w.chunks, ""))
}
