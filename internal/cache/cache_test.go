package cache

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rebalance/internal/config"
)

type payload struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

func newTestCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *ResultCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), ttl)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestKeyIsDeterministic(t *testing.T) {
	a, err := Key("simulate", payload{Name: "x", Values: []float64{1, 2}})
	require.NoError(t, err)
	b, err := Key("simulate", payload{Name: "x", Values: []float64{1, 2}})
	require.NoError(t, err)
	c, err := Key("simulate", payload{Name: "x", Values: []float64{2, 1}})
	require.NoError(t, err)
	d, err := Key("project", payload{Name: "x", Values: []float64{1, 2}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.True(t, strings.HasPrefix(a, KeyPrefix+"simulate:"))
}

func TestKeyRejectsUnencodable(t *testing.T) {
	_, err := Key("simulate", make(chan int))
	assert.Error(t, err)
}

func TestSetGet(t *testing.T) {
	_, c := newTestCache(t, time.Minute)
	ctx := context.Background()

	in := payload{Name: "60/40", Values: []float64{10000, 10100.5}}
	require.NoError(t, c.Set(ctx, "k", in))

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(0), misses)
}

func TestGetMiss(t *testing.T) {
	_, c := newTestCache(t, time.Minute)

	var out payload
	hit, err := c.Get(context.Background(), "absent", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestEntriesExpire(t *testing.T) {
	mr, c := newTestCache(t, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a"}))
	assert.Equal(t, 30*time.Second, mr.TTL("k"))

	mr.FastForward(31 * time.Second)

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCorruptEntryIsEvicted(t *testing.T) {
	mr, c := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("k", "{not json"))

	var out payload
	hit, err := c.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("k"))
}

func TestInvalidate(t *testing.T) {
	mr, c := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "b", 2))
	require.NoError(t, c.Invalidate(ctx, "a", "b"))
	require.NoError(t, c.Invalidate(ctx))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestGetErrorWhenRedisDown(t *testing.T) {
	mr, c := newTestCache(t, time.Minute)
	mr.Close()

	var out payload
	_, err := c.Get(context.Background(), "k", &out)
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port, ResultTTL: 60}
	c, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v"))
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestNewFromConfigUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host := mr.Host()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = NewFromConfig(ctx, config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}
