package volume

import (
	"testing"
	"time"

	"github.com/betbot/volbot/pkg/cache"
	"github.com/stretchr/testify/assert"
)

func TestHoldElapsed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.True(t, HoldElapsed(AccountState{}, now), "flat account is always eligible")

	st := AccountState{EntryTime: now.Add(-59 * time.Second), MinHold: time.Minute}
	assert.False(t, HoldElapsed(st, now))
	st.EntryTime = now.Add(-time.Minute)
	assert.True(t, HoldElapsed(st, now))
}

func TestExitDecision(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	entry := 1.0
	base := AccountState{
		EntryTime:  now.Add(-70 * time.Second),
		EntryPrice: &entry,
		MinHold:    60 * time.Second,
		Timeout:    90 * time.Second,
	}
	up := cache.Price{USD: 1.15}
	flat := cache.Price{USD: 1.0}

	assert.Equal(t, ExitProfit, ExitDecision(base, now, up, true, 1.15, false))
	assert.Equal(t, ExitNone, ExitDecision(base, now, up, true, 1.15, true), "volume mode disables profit exits")
	assert.Equal(t, ExitNone, ExitDecision(base, now, flat, true, 1.15, false))
	assert.Equal(t, ExitNone, ExitDecision(base, now, up, false, 1.15, false))

	timedOut := base
	timedOut.EntryTime = now.Add(-90 * time.Second)
	assert.Equal(t, ExitTimeout, ExitDecision(timedOut, now, flat, true, 1.15, true))

	early := base
	early.EntryTime = now.Add(-10 * time.Second)
	early.Timeout = 5 * time.Second
	assert.Equal(t, ExitNone, ExitDecision(early, now, up, true, 1.15, false), "no exit inside the hold window")
}

func TestMustBuy(t *testing.T) {
	assert.False(t, MustBuy(AccountState{SellStreak: 1}))
	assert.True(t, MustBuy(AccountState{SellStreak: 2, BuyStreak: 1}))
	assert.False(t, MustBuy(AccountState{SellStreak: 3, BuyStreak: 2}))
}
