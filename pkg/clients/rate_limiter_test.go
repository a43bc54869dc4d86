package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketRateLimiter_Reserve(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := newTokenBucket(10, 3, func() time.Time { return now })

	var got []time.Duration
	for i := 0; i < 5; i++ {
		got = append(got, rl.reserve())
	}
	assert.Equal(t, []time.Duration{0, 0, 0, 100 * time.Millisecond, 200 * time.Millisecond}, got)

	now = now.Add(time.Second)
	assert.Zero(t, rl.reserve(), "bucket refills while idle")
}

func TestTokenBucketRateLimiter_WaitRefills(t *testing.T) {
	rl := NewTokenBucketRateLimiter(10, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	waited, err := rl.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	waited, err = rl.Wait(ctx)
	require.NoError(t, err)
	assert.Greater(t, waited, time.Duration(0))
}

func TestTokenBucketRateLimiter_WaitCanceled(t *testing.T) {
	rl := NewTokenBucketRateLimiter(0.001, 1)
	_, err := rl.Wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	canceled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	_, err = rl.Wait(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucketRateLimiter_ReleaseOnCancel(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl := newTokenBucket(1, 1, func() time.Time { return now })

	assert.Zero(t, rl.reserve())
	assert.Equal(t, time.Second, rl.reserve())
	rl.release()
	assert.Equal(t, time.Second, rl.reserve(), "released slot is reused")
}
