package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int64, int](2, time.Minute)
	c.Set(1, 10)
	c.Set(2, 20)

	_, ok := c.Get(1)
	assert.True(t, ok)
	c.Set(3, 30)

	_, ok = c.Get(2)
	assert.False(t, ok, "2 was the least recently used")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New[string, int](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	now = now.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUOverwriteAndDelete(t *testing.T) {
	c := New[string, int](0, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)
	v, _ := c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())

	c.Delete("a")
	c.Delete("missing")
	_, ok := c.Get("a")
	assert.False(t, ok)
}
