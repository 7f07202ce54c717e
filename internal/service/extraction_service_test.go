package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/apperr"
	"medimate-go/internal/config"
	"medimate-go/internal/model"
	"medimate-go/internal/pipeline"
)

func buildPrescriptionIndex(t *testing.T, texts ...string) *pipeline.PrescriptionIndex {
	t.Helper()
	chunks := make([]model.TextChunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, model.TextChunk{Page: 1, Start: i * 100, End: i*100 + len(text), Text: text})
	}
	idx, err := pipeline.BuildPrescriptionIndex(context.Background(), &bowEmbedder{}, chunks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestExtractionService_EmptyIndex(t *testing.T) {
	client := &fakeLLM{answer: "unused"}
	svc := NewExtractionService(client, config.ExtractionConfig{}, "gpt-test", time.Second)

	got, err := svc.ExtractMedicineNames(context.Background(), buildPrescriptionIndex(t))
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Zero(t, client.callCount())
}

func TestExtractionService_PromptShape(t *testing.T) {
	client := &fakeLLM{answer: "Paracetamol, Amoxicillin"}
	svc := NewExtractionService(client, config.ExtractionConfig{Temperature: 0}, "gpt-test", time.Second)
	idx := buildPrescriptionIndex(t, "Rx: Paracetamol 500mg twice daily", "Amoxicillin 250mg for 5 days", "Patient name: John")

	got, err := svc.ExtractMedicineNames(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol, Amoxicillin", got)

	require.Equal(t, 1, client.callCount())
	msgs := client.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Paracetamol 500mg")
	assert.Contains(t, msgs[0].Content, "Amoxicillin 250mg")
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, config.DefaultExtractionQuery, msgs[1].Content)

	gen := client.params[0]
	assert.Equal(t, "gpt-test", gen.Model)
	require.NotNil(t, gen.Temperature)
	assert.Equal(t, 0.0, *gen.Temperature)
}

func TestExtractionService_BackendFailure(t *testing.T) {
	client := &fakeLLM{err: errors.New("503 service unavailable")}
	svc := NewExtractionService(client, config.ExtractionConfig{}, "gpt-test", time.Second)

	_, err := svc.ExtractMedicineNames(context.Background(), buildPrescriptionIndex(t, "Paracetamol"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrExtractionFailed))
	assert.Equal(t, 500, apperr.HTTPStatus(err))
}
