package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPriceCache_WithinTTLNoSecondFetch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	calls := 0
	pc := NewPriceCache(func(ctx context.Context) (float64, error) {
		calls++
		return 0.0123 * float64(calls), nil
	}, 8*time.Second).WithClock(clock.Now)

	p1, ok := pc.Get(context.Background())
	require.True(t, ok)
	clock.Advance(8 * time.Second)
	p2, ok := pc.Get(context.Background())
	require.True(t, ok)

	assert.Equal(t, 1, calls)
	assert.Equal(t, p1.USD, p2.USD)
	assert.False(t, p2.Stale)
}

func TestPriceCache_RefetchAfterTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	calls := 0
	pc := NewPriceCache(func(ctx context.Context) (float64, error) {
		calls++
		return float64(calls), nil
	}, 8*time.Second).WithClock(clock.Now)

	_, _ = pc.Get(context.Background())
	clock.Advance(8*time.Second + time.Millisecond)
	p, ok := pc.Get(context.Background())

	require.True(t, ok)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, p.USD)
}

func TestPriceCache_StaleOnError(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	fail := false
	pc := NewPriceCache(func(ctx context.Context) (float64, error) {
		if fail {
			return 0, errors.New("dexscreener down")
		}
		return 1.5, nil
	}, time.Second).WithClock(clock.Now)

	_, ok := pc.Get(context.Background())
	require.True(t, ok)

	fail = true
	clock.Advance(2 * time.Second)
	p, ok := pc.Get(context.Background())
	require.True(t, ok)
	assert.True(t, p.Stale)
	assert.Equal(t, 1.5, p.USD)
}

func TestPriceCache_NoneBeforeFirstSuccess(t *testing.T) {
	pc := NewPriceCache(func(ctx context.Context) (float64, error) {
		return 0, nil
	}, time.Second)
	_, ok := pc.Get(context.Background())
	assert.False(t, ok)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewInMemoryCache[string, bool](time.Minute).WithClock(clock.Now)

	c.Set("0xabc", true, 0)
	v, ok := c.Get("0xabc")
	require.True(t, ok)
	assert.True(t, v)

	clock.Advance(time.Minute)
	_, ok = c.Get("0xabc")
	assert.False(t, ok)

	c.Set("0xdef", true, time.Hour)
	assert.Equal(t, 1, c.Size())
}
