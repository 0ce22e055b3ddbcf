package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRateLimiter(t *testing.T) {
	primary := new(mockLimiter)
	fallback := new(mockLimiter)
	logger := zerolog.New(io.Discard)
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "user:1", 10, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.CheckRateLimit(ctx, "user:1", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, limiter.Down())
	})

	t.Run("PrimaryFailsFallbackServes", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "user:1", 10, time.Minute).Return(false, errors.New("redis down")).Once()
		fallback.On("CheckRateLimit", ctx, "user:1", 10, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.CheckRateLimit(ctx, "user:1", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, limiter.Down())
	})

	t.Run("StaysOnFallbackWithinInterval", func(t *testing.T) {
		now = now.Add(30 * time.Second)
		fallback.On("CheckRateLimit", ctx, "user:1", 10, time.Minute).Return(false, nil).Once()

		allowed, err := limiter.CheckRateLimit(ctx, "user:1", 10, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		now = now.Add(time.Minute)
		primary.On("CheckRateLimit", ctx, "user:1", 10, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.CheckRateLimit(ctx, "user:1", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, limiter.Down())
	})

	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}
