package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewLimiter(NewRedisStore(client), map[Kind]Policy{
		KindTicketCreate: {Limit: 2, Window: 5 * time.Minute},
	}, WithClock(func() time.Time { return epoch }))
	ctx := context.Background()
	key := TicketCreateKey("g1", "u1")

	for i := 0; i < 2; i++ {
		d, err := limiter.Check(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := limiter.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, uint32(3), d.Count)
	assert.Equal(t, 5*time.Minute, d.RetryAfter)

	// saturated counters stop growing
	d, err = limiter.Check(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), d.Count)

	mr.FastForward(2 * time.Minute)
	d, err = limiter.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3*time.Minute, d.RetryAfter)

	mr.FastForward(3 * time.Minute)
	d, err = limiter.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, uint32(1), d.Count)
	assert.True(t, mr.Exists("ratelimit:ticket:create:g1:u1"))
}

func TestRedisStoreNilClient(t *testing.T) {
	_, err := NewRedisStore(nil).Hit(context.Background(), "k", 1, time.Second, epoch)
	assert.Error(t, err)
}
