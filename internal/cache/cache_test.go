package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCache(ttl time.Duration, capacity int64) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := New(Config{TTL: ttl, Capacity: capacity})
	c.now = clock.now
	return c, clock
}

func TestCache_SetGet(t *testing.T) {
	c, _ := newTestCache(time.Minute, 100)

	assert.True(t, c.Set("a", []byte("alpha"), 0))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("alpha"), got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, int64(5), stats.Cost)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c, _ := newTestCache(time.Minute, 100)

	value := []byte("alpha")
	c.Set("a", value, 0)
	value[0] = 'X'

	got, _ := c.Get("a")
	got[1] = 'Y'

	again, _ := c.Get("a")
	assert.Equal(t, []byte("alpha"), again)
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 100)

	c.Set("a", []byte("alpha"), 0)
	clock.t = clock.t.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.t = clock.t.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)

	c.Set("a", []byte("aaaa"), 0)
	c.Set("b", []byte("bbbb"), 0)
	_, _ = c.Get("a") // b is now least recently used

	c.Set("c", []byte("cccc"), 0)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, int64(8), c.Stats().Cost)
}

func TestCache_RejectsOversizedEntry(t *testing.T) {
	c, _ := newTestCache(time.Minute, 4)

	c.Set("a", []byte("aa"), 0)
	assert.False(t, c.Set("big", []byte("too large"), 0))
	assert.Equal(t, 1, c.Len())
}

func TestCache_ReplaceUpdatesCost(t *testing.T) {
	c, _ := newTestCache(time.Minute, 100)

	c.Set("a", []byte("aaaa"), 0)
	c.Set("a", []byte("aa"), 0)

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(2), c.Stats().Cost)
}

func TestCache_DeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(time.Minute, 100)

	c.Set("search:1", []byte("x"), 0)
	c.Set("search:2", []byte("y"), 0)
	c.Set("embed:1", []byte("z"), 0)

	c.Delete("search:1")
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 1, c.DeletePrefix("search:"))
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Cost)
}

func TestCache_JSON(t *testing.T) {
	c, _ := newTestCache(time.Minute, 1000)

	type payload struct {
		Name  string
		Score float64
	}
	require.NoError(t, c.SetJSON("k", payload{Name: "n", Score: 0.5}))

	var got payload
	ok, err := c.GetJSON("k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "n", Score: 0.5}, got)

	ok, err = c.GetJSON("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_GetJSONDropsCorruptEntry(t *testing.T) {
	c, _ := newTestCache(time.Minute, 1000)
	c.Set("k", []byte("{not json"), 0)

	var v map[string]any
	ok, err := c.GetJSON("k", &v)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}
