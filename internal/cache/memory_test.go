package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Symbol string
	Price  float64
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	var got sample
	ok, err := c.Get(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "btc", sample{"BTC", 42000.5}, time.Minute))
	ok, err = c.Get(ctx, "btc", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample{"BTC", 42000.5}, got)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))

	now = now.Add(59 * time.Second)
	var v int
	ok, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, err = c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_NonPositiveTTL(t *testing.T) {
	c := NewMemory()
	require.NoError(t, c.Set(context.Background(), "k", 1, 0))
	assert.Equal(t, 0, c.Len())
}

func TestMemory_DecodeError(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	require.NoError(t, c.Set(ctx, "k", "text", time.Minute))

	var n int
	_, err := c.Get(ctx, "k", &n)
	assert.Error(t, err)
}
