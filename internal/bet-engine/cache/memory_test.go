package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type cachedUser struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryWithClock(time.Minute, clock.Now)

	require.NoError(t, c.Set(ctx, UserKey("u1"), cachedUser{ID: "u1", Balance: "900"}, 10*time.Second))

	var got cachedUser
	hit, err := c.Get(ctx, UserKey("u1"), &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "900", got.Balance)

	clock.Advance(9 * time.Second)
	hit, _ = c.Get(ctx, UserKey("u1"), &got)
	assert.True(t, hit, "hit before ttl")

	clock.Advance(time.Second)
	hit, _ = c.Get(ctx, UserKey("u1"), &got)
	assert.False(t, hit, "miss once ttl elapsed")
}

func TestMemoryDefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryWithClock(0, clock.Now)

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	var v int

	clock.Advance(DefaultTTL - time.Millisecond)
	hit, _ := c.Get(ctx, "k", &v)
	assert.True(t, hit)

	clock.Advance(time.Millisecond)
	hit, _ = c.Get(ctx, "k", &v)
	assert.False(t, hit)
}

func TestMemoryDeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))

	require.NoError(t, c.Delete(ctx, "a"))
	var v int
	hit, _ := c.Get(ctx, "a", &v)
	assert.False(t, hit)

	require.NoError(t, c.Flush(ctx))
	hit, _ = c.Get(ctx, "b", &v)
	assert.False(t, hit)

	assert.NoError(t, c.Delete(ctx, "never-set"))
}

func TestMemoryValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	u := cachedUser{ID: "u1", Balance: "1000"}
	require.NoError(t, c.Set(ctx, "u", u, 0))
	u.Balance = "0"

	var got cachedUser
	_, err := c.Get(ctx, "u", &got)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Balance)
}
