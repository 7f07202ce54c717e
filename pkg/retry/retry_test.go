package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimate-go/internal/config"
)

var fastPolicy = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	boom := errors.New("bad request")
	err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("embedding: %w", context.DeadlineExceeded)
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, calls)
}

func TestDo_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("unavailable"))
	})
	assert.Error(t, err)
	assert.Less(t, calls, 10)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"marked", Transient(errors.New("x")), true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestFromConfig_Defaults(t *testing.T) {
	p := FromConfig(config.RetryConfig{})
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 5*time.Second, p.MaxInterval)
}
