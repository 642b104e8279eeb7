package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		ops       uint
		burst     uint
		wantBurst int
		unlimited bool
	}{
		{name: "standard rate", ops: 100, burst: 200, wantBurst: 200},
		{name: "burst defaults to rate", ops: 50, burst: 0, wantBurst: 50},
		{name: "unlimited", ops: 0, burst: 0, unlimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.ops, tt.burst)
			require.NotNil(t, limiter)
			assert.Equal(t, tt.unlimited, limiter.Unlimited())
			if !tt.unlimited {
				assert.Equal(t, tt.wantBurst, limiter.Burst())
				assert.InDelta(t, float64(tt.ops), limiter.Limit(), 0.001)
			}
		})
	}
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "request %d should be allowed within burst", i)
	}
	assert.False(t, limiter.Allow(), "bucket should be empty after burst")

	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow(), "a token should have been replenished")
}

func TestWait(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 300*time.Millisecond)
}

func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestUnlimitedNeverBlocks(t *testing.T) {
	limiter := New(0, 0)

	for i := 0; i < 10000; i++ {
		require.True(t, limiter.Allow(), "unlimited limiter rejected request %d", i)
	}
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Zero(t, limiter.Limit())
}

func BenchmarkWaitUnlimited(b *testing.B) {
	limiter := New(0, 0)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = limiter.Wait(ctx)
	}
}
