package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/apperr"
	"medimate-go/internal/config"
	"medimate-go/internal/repository"
	"medimate-go/pkg/token"
)

func newTestChatService(client *fakeLLM) (ChatService, repository.ConversationRepository, *token.JWTManager) {
	repo := repository.NewMemoryConversationRepository(time.Hour, 20)
	jwtManager := token.NewJWTManager("test-secret", 1)
	cfg := config.ConversationConfig{Temperature: 0.9}
	return NewChatService(client, repo, jwtManager, cfg, "gpt-test", time.Second), repo, jwtManager
}

func TestChatService_NewSession(t *testing.T) {
	client := &fakeLLM{answer: "Drink water and rest."}
	svc, repo, jwtManager := newTestChatService(client)

	answer, tok, err := svc.Ask(context.Background(), "", "I have a headache")
	require.NoError(t, err)
	assert.Equal(t, "Drink water and rest.", answer)
	require.NotEmpty(t, tok)

	sessionID, err := jwtManager.VerifyToken(tok)
	require.NoError(t, err)

	// 设定与欢迎语在提问之前
	msgs := client.calls[0]
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, config.DefaultPersona, msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, config.DefaultWelcome, msgs[1].Content)
	assert.Equal(t, "I have a headache", msgs[2].Content)

	gen := client.params[0]
	assert.Equal(t, "gpt-test", gen.Model)
	require.NotNil(t, gen.Temperature)
	assert.InDelta(t, 0.9, *gen.Temperature, 1e-9)

	history, ok, err := repo.GetConversationHistory(context.Background(), sessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestChatService_ContinuesSession(t *testing.T) {
	client := &fakeLLM{answer: "ok"}
	svc, _, _ := newTestChatService(client)

	_, tok, err := svc.Ask(context.Background(), "", "first question")
	require.NoError(t, err)
	_, tok2, err := svc.Ask(context.Background(), tok, "second question")
	require.NoError(t, err)
	assert.Equal(t, tok, tok2)

	msgs := client.calls[1]
	require.Len(t, msgs, 5)
	assert.Equal(t, "first question", msgs[2].Content)
	assert.Equal(t, "ok", msgs[3].Content)
	assert.Equal(t, "second question", msgs[4].Content)

	// 另一个会话互不可见
	_, _, err = svc.Ask(context.Background(), "", "other session")
	require.NoError(t, err)
	assert.Len(t, client.calls[2], 3)
}

func TestChatService_InvalidTokenStartsNewSession(t *testing.T) {
	client := &fakeLLM{answer: "ok"}
	svc, _, _ := newTestChatService(client)

	_, tok, err := svc.Ask(context.Background(), "not-a-token", "hello")
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-token", tok)
	assert.Len(t, client.calls[0], 3)
}

func TestChatService_Errors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		client := &fakeLLM{}
		svc, _, _ := newTestChatService(client)
		_, _, err := svc.Ask(context.Background(), "", "   ")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
		assert.Equal(t, "Question is required", apperr.Message(err))
		assert.Zero(t, client.callCount())
	})

	t.Run("backend failure is not stored", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("timeout")}
		svc, _, _ := newTestChatService(client)
		_, _, err := svc.Ask(context.Background(), "", "hello")
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrChatBackend))
		assert.Equal(t, 500, apperr.HTTPStatus(err))
	})
}

func TestChatService_StreamResponse(t *testing.T) {
	client := &fakeLLM{chunks: []string{"Take ", "rest."}}
	svc, _, _ := newTestChatService(client)
	rec := &wsRecorder{}

	tok, err := svc.StreamResponse(context.Background(), "", "I feel tired", rec)
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.Len(t, rec.messages, 3)

	var chunk map[string]string
	require.NoError(t, json.Unmarshal([]byte(rec.messages[0]), &chunk))
	assert.Equal(t, "Take ", chunk["chunk"])

	var done map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rec.messages[2]), &done))
	assert.Equal(t, "completion", done["type"])
	assert.Equal(t, tok, done["session_token"])

	history, err := svc.History(context.Background(), tok)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "I feel tired", history[0].Content)
	assert.Equal(t, "Take rest.", history[1].Content)
}

func TestChatService_History(t *testing.T) {
	client := &fakeLLM{answer: "ok"}
	svc, _, _ := newTestChatService(client)

	_, err := svc.History(context.Background(), "bad-token")
	require.Error(t, err)
	assert.Equal(t, 400, apperr.HTTPStatus(err))

	_, tok, err := svc.Ask(context.Background(), "", "hello")
	require.NoError(t, err)
	history, err := svc.History(context.Background(), tok)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
