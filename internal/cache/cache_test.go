package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPutInvalidate(t *testing.T) {
	c := New[string]()

	_, ok := c.Get("a")
	require.False(t, ok, "empty cache")

	require.True(t, c.Put("a", c.Begin(), "alpha"))
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "alpha", v)

	c.Invalidate("a")
	_, ok = c.Get("a")
	require.False(t, ok, "stale entries are not served by Get")

	v, ok = c.Peek("a")
	require.True(t, ok, "Peek serves stale entries")
	require.Equal(t, "alpha", v)

	// Invalidating an unknown key is a no-op.
	c.Invalidate("missing")
	c.InvalidateAll()
	require.Equal(t, 1, c.Len())
}

func TestPut_DiscardsLateWrite(t *testing.T) {
	c := New[string]()

	older := c.Begin()
	newer := c.Begin()

	// The newer call completes first.
	require.True(t, c.Put("a", newer, "new"))
	require.False(t, c.Put("a", older, "old"), "late write must be discarded")

	v, _ := c.Get("a")
	require.Equal(t, "new", v)
}

func TestRemove_TombstoneBlocksLateRead(t *testing.T) {
	c := New[string]()

	read := c.Begin()
	del := c.Begin()

	require.True(t, c.Remove("a", del))
	require.False(t, c.Put("a", read, "resurrected"))

	_, ok := c.Peek("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestRemove_OlderThanWrite(t *testing.T) {
	c := New[string]()

	del := c.Begin()
	write := c.Begin()

	require.True(t, c.Put("a", write, "kept"))
	require.False(t, c.Remove("a", del))

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "kept", v)
}

func TestFill(t *testing.T) {
	c := New[string]()

	c.Put("gone", c.Begin(), "x")
	listing := c.Begin()
	later := c.Begin()
	c.Put("late", later, "written after listing")

	c.Fill(listing, map[string]string{"a": "alpha", "b": "beta"})

	require.True(t, c.Complete())
	require.Equal(t, []string{"alpha", "beta", "written after listing"}, c.Values())
	_, ok := c.Get("gone")
	require.False(t, ok, "entries missing from the listing are removed")

	c.Invalidate("a")
	require.False(t, c.Complete())
	require.Equal(t, []string{"beta", "written after listing"}, c.Values())
}

func TestFill_StaleNewerEntryKeepsIncomplete(t *testing.T) {
	c := New[string]()

	listing := c.Begin()
	c.Put("a", c.Begin(), "newer")
	c.Invalidate("a")

	c.Fill(listing, map[string]string{"a": "older"})
	require.False(t, c.Complete())
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq := c.Begin()
			c.Put("k", seq, i)
			c.Get("k")
			c.Values()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, c.Len())
}
