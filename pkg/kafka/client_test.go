package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/config"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestNewPublisher_DisabledIsNoop(t *testing.T) {
	p := NewPublisher(config.KafkaConfig{Enabled: false})
	_, ok := p.(NoopPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), "k", map[string]string{"a": "b"}))
	assert.NoError(t, p.Close())
}

func TestWriterPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &writerPublisher{writer: w}

	err := p.Publish(context.Background(), "req-1", map[string]int{"chunk_count": 3})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "req-1", string(w.msgs[0].Key))

	var got map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, 3, got["chunk_count"])
}

func TestWriterPublisher_WriteError(t *testing.T) {
	p := &writerPublisher{writer: &recordingWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), "k", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
