package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SetJSON(ctx, "k", summary{Total: 12.5, Count: 3}, time.Minute))

	var got summary
	hit, err := m.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, summary{Total: 12.5, Count: 3}, got)
}

func TestMemory_Miss(t *testing.T) {
	var got summary
	hit, err := NewMemory().GetJSON(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.SetJSON(ctx, "k", 1, time.Second))
	now = now.Add(2 * time.Second)

	var v int
	hit, err := m.GetJSON(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SetJSON(ctx, "a", 1, 0))
	require.NoError(t, m.SetJSON(ctx, "b", 2, 0))

	require.NoError(t, m.Delete(ctx, "a", "missing"))

	var v int
	hit, _ := m.GetJSON(ctx, "a", &v)
	assert.False(t, hit)
	hit, _ = m.GetJSON(ctx, "b", &v)
	assert.True(t, hit)
	assert.Equal(t, 2, v)
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	require.NoError(t, c.SetJSON(ctx, "k", 1, time.Minute))
	var v int
	hit, err := c.GetJSON(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Ping(ctx))
}

func TestNewRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url://", "hms:")
	assert.Error(t, err)
}

func TestRedisCache_ImplementsCache(t *testing.T) {
	var _ Cache = (*RedisCache)(nil)
	var _ Cache = (*Memory)(nil)
}

func TestMemory_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SetJSON(ctx, "dashboard:2026-01", 1, 0))
	require.NoError(t, m.SetJSON(ctx, "dashboard:2026-02", 2, 0))
	require.NoError(t, m.SetJSON(ctx, "service_codes:all", 3, 0))

	require.NoError(t, m.DeletePrefix(ctx, "dashboard:"))
	assert.Equal(t, 1, m.Len())

	var v int
	hit, err := m.GetJSON(ctx, "service_codes:all", &v)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.NoError(t, Noop{}.DeletePrefix(ctx, "dashboard:"))
}
