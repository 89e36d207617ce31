package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/ticker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestTick_RefreshesDueGuilds(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin", "ethereum")
	h.track(t, "g2", "bitcoin")
	_, err := h.registry.Update("g3", func(g *guilds.GuildConfig) error { return g.AddToken("bitcoin", 2) })
	require.NoError(t, err)

	obs := &recordingObserver{}
	h.tracker.AddObserver(obs)

	h.tracker.Tick(context.Background())

	require.Equal(t, 1, h.source.callCount(), "one provider call per tick")
	assert.Equal(t, []string{"bitcoin", "ethereum"}, h.source.calls[0])

	nick, _ := h.display.nick("g1")
	assert.Equal(t, "BTC: $100.0000= | ETH: $10.0000=", nick)
	nick, _ = h.display.nick("g2")
	assert.Equal(t, "BTC: $100.0000=", nick)
	_, ok := h.display.nick("g3")
	assert.False(t, ok, "non-tracking guild untouched")

	assert.Equal(t, ticker.ColorFlat, h.display.color("g1"))
	assert.Equal(t, []string{"24h: BTC +1.5%"}, h.display.statuses, "identical status sent once")

	cfg, _ := h.registry.Get("g1")
	assert.Equal(t, "role-g1", cfg.RoleID)
	assert.Equal(t, 100.0, cfg.LastPrices["bitcoin"])
	assert.Equal(t, h.clock.Now(), cfg.LastUpdate)
	assert.Equal(t, 1, obs.calls["g1"])
	assert.Len(t, h.tracker.History().Series("bitcoin"), 1)

	// not due yet
	h.tracker.Tick(context.Background())
	assert.Equal(t, 1, h.source.callCount())

	h.clock.Advance(5 * time.Minute)
	h.source.set("bitcoin", 120)
	h.tracker.Tick(context.Background())

	assert.Equal(t, 2, h.source.callCount())
	nick, _ = h.display.nick("g2")
	assert.Equal(t, "BTC: $120.0000+", nick)
	assert.Equal(t, ticker.ColorUp, h.display.color("g2"))
	nick, _ = h.display.nick("g1")
	assert.Equal(t, "BTC: $120.0000+ | ETH: $10.0000=", nick)

	h.clock.Advance(5 * time.Minute)
	h.source.set("bitcoin", 90)
	h.tracker.Tick(context.Background())
	assert.Equal(t, ticker.ColorDown, h.display.color("g2"))
}

func TestTick_RespectsPerGuildInterval(t *testing.T) {
	h := newHarness(t)
	h.track(t, "fast", "bitcoin")
	h.track(t, "slow", "bitcoin")
	_, err := h.registry.Update("slow", func(g *guilds.GuildConfig) error { return g.SetInterval(3600) })
	require.NoError(t, err)

	h.tracker.Tick(context.Background())
	h.clock.Advance(5 * time.Minute)
	h.source.set("bitcoin", 150)
	h.tracker.Tick(context.Background())

	fast, _ := h.display.nick("fast")
	slow, _ := h.display.nick("slow")
	assert.Equal(t, "BTC: $150.0000+", fast)
	assert.Equal(t, "BTC: $100.0000=", slow)
}

func TestTick_StaleFallback(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin")
	h.tracker.Tick(context.Background())

	h.clock.Advance(5 * time.Minute)
	h.source.setErr(errors.New("503 from provider"))
	h.tracker.Tick(context.Background())

	nick, _ := h.display.nick("g1")
	assert.Equal(t, "BTC: $100.0000=", nick)

	cfg, _ := h.registry.Get("g1")
	assert.Equal(t, 100.0, cfg.LastPrices["bitcoin"])
	assert.Equal(t, h.clock.Now(), cfg.LastUpdate)

	res, err := h.tracker.ForceUpdate(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, res.Stale)
}

func TestTick_NoValueSkipsGuild(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin")
	h.source.setErr(errors.New("network down"))

	h.tracker.Tick(context.Background())

	_, ok := h.display.nick("g1")
	assert.False(t, ok)
	cfg, _ := h.registry.Get("g1")
	assert.True(t, cfg.LastUpdate.IsZero(), "guild stays due")

	_, err := h.tracker.ForceUpdate(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrNoQuotes)
}

func TestTick_DisplayFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin")
	h.track(t, "g2", "bitcoin")
	h.display.failNick["g1"] = true

	h.tracker.Tick(context.Background())

	nick, _ := h.display.nick("g2")
	assert.Equal(t, "BTC: $100.0000=", nick)
	cfg, _ := h.registry.Get("g1")
	assert.Equal(t, 100.0, cfg.LastPrices["bitcoin"])
}

func TestTick_RecreatesDeletedRole(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin")
	_, err := h.registry.Update("g1", func(g *guilds.GuildConfig) error {
		g.SetRole("deleted-role")
		return nil
	})
	require.NoError(t, err)
	h.display.deletedRoles["deleted-role"] = true

	h.tracker.Tick(context.Background())

	cfg, _ := h.registry.Get("g1")
	assert.Equal(t, "role-g1", cfg.RoleID)
	assert.Equal(t, ticker.ColorFlat, h.display.color("g1"))
	assert.Equal(t, 1, h.display.ensureCalls)
	assert.Equal(t, 1, h.display.colorErrors)

	for i := 0; i < 4; i++ {
		h.clock.Advance(5 * time.Minute)
		h.tracker.Tick(context.Background())
	}
	assert.Equal(t, 1, h.display.ensureCalls, "recovered role id is reused")
	assert.Equal(t, 1, h.display.colorErrors)
}

func TestTick_GuildRemovedDuringRefreshStaysRemoved(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin")
	obs := &recordingObserver{}
	h.tracker.AddObserver(obs)
	h.display.onNickname = func(guildID string) {
		assert.NoError(t, h.registry.Remove(guildID))
	}

	h.tracker.Tick(context.Background())

	_, ok := h.registry.Get("g1")
	assert.False(t, ok)
	assert.Zero(t, obs.calls["g1"])
}

func TestTick_RecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.track(t, "g1", "bitcoin")
	h.track(t, "g2", "bitcoin")
	h.display.panicGuild = "g1"

	require.NotPanics(t, func() { h.tracker.Tick(context.Background()) })

	nick, _ := h.display.nick("g2")
	assert.Equal(t, "BTC: $100.0000=", nick)

	_, err := h.tracker.ForceUpdate(context.Background(), "g1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestForceUpdate(t *testing.T) {
	h := newHarness(t)
	_, err := h.tracker.ForceUpdate(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotTracking)

	h.track(t, "g1", "bitcoin")
	h.tracker.Tick(context.Background())
	require.Equal(t, 1, h.source.callCount())

	h.source.set("bitcoin", 101)
	res, err := h.tracker.ForceUpdate(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, h.source.callCount(), "cache TTL bypassed")
	assert.Equal(t, "BTC: $101.0000+", res.Nickname)
	assert.Equal(t, ticker.Up, res.Trend)
	require.Len(t, res.Quotes, 1)
	assert.Equal(t, "bitcoin", res.Quotes[0].ID)

	_, err = h.registry.Update("g1", func(g *guilds.GuildConfig) error { return g.SetTracking(false) })
	require.NoError(t, err)
	_, err = h.tracker.ForceUpdate(context.Background(), "g1")
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestStatusToken(t *testing.T) {
	h := newHarness(t)
	h.tracker.opts.StatusToken = "ethereum"
	h.track(t, "g1", "bitcoin", "ethereum")

	h.tracker.Tick(context.Background())
	assert.Equal(t, []string{"24h: ETH +1.5%"}, h.display.statuses)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		// buntdb's expiry loop only notices Close on its next one second tick
		goleak.IgnoreAnyFunction("github.com/tidwall/buntdb.(*DB).backgroundManager"),
	)

	h := newHarness(t)
	h.track(t, "g1", "bitcoin")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.tracker.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := h.display.nick("g1")
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}

	require.NoError(t, h.registry.Close())
}
