package lottery

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newClockedCache(ttl time.Duration) (*SummaryCache, *clock) {
	clk := &clock{t: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	c := NewSummaryCache(ttl)
	c.now = clk.now
	c.lastSweep = clk.t
	return c, clk
}

func TestSummaryCacheExpiry(t *testing.T) {
	c, clk := newClockedCache(time.Minute)

	c.Set("flyer-1", Summary{MaxUsers: 20})
	got, ok := c.Get("flyer-1")
	require.True(t, ok)
	require.Equal(t, int64(20), got.MaxUsers)

	clk.t = clk.t.Add(2 * time.Minute)
	_, ok = c.Get("flyer-1")
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestSummaryCacheSweepsUnreadEntries(t *testing.T) {
	c, clk := newClockedCache(time.Minute)

	for _, id := range []string{"flyer-1", "flyer-2", "flyer-3"} {
		c.Set(id, Summary{MaxUsers: 1})
	}
	require.Equal(t, 3, c.Len())

	clk.t = clk.t.Add(2 * time.Minute)
	c.Set("flyer-4", Summary{MaxUsers: 4})
	require.Equal(t, 1, c.Len())

	_, ok := c.Get("flyer-4")
	require.True(t, ok)
}

func TestSummaryCacheLoad(t *testing.T) {
	c, _ := newClockedCache(time.Minute)

	calls := 0
	load := func() (Summary, error) {
		calls++
		return Summary{MaxUsers: 416}, nil
	}

	for range 3 {
		got, err := c.Load("flyer-1", load)
		require.NoError(t, err)
		require.Equal(t, int64(416), got.MaxUsers)
	}
	require.Equal(t, 1, calls)

	c.Invalidate("flyer-1")
	_, err := c.Load("flyer-1", load)
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	boom := errors.New("boom")
	_, err = c.Load("flyer-2", func() (Summary, error) { return Summary{}, boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, c.Len())
}
