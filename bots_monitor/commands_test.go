package bots_monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticker-bot/internal/clients_api/goldilocks"
	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/tracker"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandHarness struct {
	reg       *guilds.Registry
	tracker   *fakeTracker
	messenger *fakeMessenger
	handler   *CommandHandler
}

func newCommandHarness(t *testing.T, opts CommandOptions) *commandHarness {
	t.Helper()
	h := &commandHarness{
		reg:       newTestRegistry(t),
		tracker:   newFakeTracker(),
		messenger: &fakeMessenger{},
	}
	h.tracker.addQuote("bitcoin", "BTC", 43250.5, 2.1)
	h.tracker.addQuote("ethereum", "ETH", 2280.75, -1.4)
	h.tracker.addQuote("goldilocks-dao", "LOCKS", 1.2345, 12.3)
	h.handler = NewCommandHandler(h.reg, h.tracker, h.messenger, prices.NewCatalog(nil, nil), opts)
	return h
}

func (h *commandHarness) run(name string, opts map[string]string) Reply {
	return h.handler.Execute(context.Background(), name, Request{GuildID: "g1", ChannelID: "c1", Options: opts})
}

func TestDefinitions(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	assert.ElementsMatch(t, []string{
		"track", "untrack", "start", "stop", "price_status", "status",
		"set_interval", "get_interval", "force_update", "setup", "chart", "sync",
	}, h.handler.CommandNames())

	for _, c := range h.handler.Definitions() {
		switch c.Name {
		case "price_status", "status", "get_interval", "chart":
			assert.Nil(t, c.DefaultMemberPermissions, c.Name)
		default:
			require.NotNil(t, c.DefaultMemberPermissions, c.Name)
			assert.Equal(t, int64(discordgo.PermissionAdministrator), *c.DefaultMemberPermissions, c.Name)
		}
	}
}

func TestExecute_RequiresGuild(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	reply := h.handler.Execute(context.Background(), "status", Request{})
	assert.Contains(t, reply.Content, "only be used in a server")
}

func TestTrackCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{MaxTokens: 2})

	reply := h.run("track", map[string]string{"token": "BTC"})
	assert.Contains(t, reply.Content, "✅ Now tracking BTC (`bitcoin`)")

	cfg, ok := h.reg.Get("g1")
	require.True(t, ok)
	assert.Equal(t, []string{"bitcoin"}, cfg.Tokens)
	assert.False(t, cfg.Tracking)

	reply = h.run("track", map[string]string{"token": "bitcoin"})
	assert.Contains(t, reply.Content, "already being tracked")

	reply = h.run("track", map[string]string{"token": "eth"})
	assert.Contains(t, reply.Content, "Now tracking ETH")

	reply = h.run("track", map[string]string{"token": "locks"})
	assert.Contains(t, reply.Content, "at most 2 tokens")

	cfg, _ = h.reg.Get("g1")
	assert.Equal(t, []string{"bitcoin", "ethereum"}, cfg.Tokens)
}

func TestTrackCommand_UnknownToken(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	reply := h.run("track", map[string]string{"token": "notacoin"})
	assert.Contains(t, reply.Content, "❌ Token `notacoin` was not found")

	_, ok := h.reg.Get("g1")
	assert.False(t, ok)

	reply = h.run("track", map[string]string{})
	assert.Contains(t, reply.Content, "Usage: /track")
}

func TestTrackCommand_SourceDown(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	h.tracker.err = errors.New("connection refused")

	reply := h.run("track", map[string]string{"token": "btc"})
	assert.Contains(t, reply.Content, "Error fetching the price")
}

func TestUntrackCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	seedGuild(t, h.reg, "g1", "", "bitcoin")

	reply := h.run("untrack", map[string]string{"token": "eth"})
	assert.Contains(t, reply.Content, "ETH is not being tracked")

	reply = h.run("untrack", map[string]string{"token": "btc"})
	assert.Contains(t, reply.Content, "✅ Stopped tracking BTC.")
	assert.Contains(t, reply.Content, "price tracking is now stopped")

	cfg, _ := h.reg.Get("g1")
	assert.Empty(t, cfg.Tokens)
	assert.False(t, cfg.Tracking)
}

func TestStartStopCommands(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	reply := h.run("start", nil)
	assert.Equal(t, "❌ No tokens configured. Use `/track {token}` first.", reply.Content)

	h.run("track", map[string]string{"token": "locks"})
	reply = h.run("start", nil)
	assert.Contains(t, reply.Content, "✅ Successfully started price tracking!")
	assert.Contains(t, reply.Content, "Current LOCKS price: $1.234500")
	assert.Contains(t, reply.Content, "every 5.0 minutes")

	reply = h.run("start", nil)
	assert.Contains(t, reply.Content, "already active")

	reply = h.run("stop", nil)
	assert.Equal(t, "✅ Stopped price tracking.", reply.Content)
	reply = h.run("stop", nil)
	assert.Equal(t, "❌ Price tracking is not active in this server.", reply.Content)
}

func TestStartCommand_DefaultTokens(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{DefaultTokens: []string{"btc", "eth", "locks"}, MaxTokens: 2})

	reply := h.run("start", nil)
	assert.Contains(t, reply.Content, "Current BTC price")

	cfg, _ := h.reg.Get("g1")
	assert.Equal(t, []string{"bitcoin", "ethereum"}, cfg.Tokens)
	assert.True(t, cfg.Tracking)
}

func TestStartCommand_InitialFetchFails(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	h.run("track", map[string]string{"token": "btc"})
	h.tracker.err = errors.New("timeout")

	reply := h.run("start", nil)
	assert.Contains(t, reply.Content, "⚠️ Price tracking started, but there was an error fetching the initial price")

	cfg, _ := h.reg.Get("g1")
	assert.True(t, cfg.Tracking)
}

func TestIntervalCommands(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	assert.Equal(t, "No tokens are being tracked in this server yet.", h.run("get_interval", nil).Content)

	reply := h.run("set_interval", map[string]string{"interval": "10m"})
	assert.Equal(t, "✅ Update interval changed from 5.0 minutes to 10.0 minutes", reply.Content)

	reply = h.run("set_interval", map[string]string{"interval": "7200"})
	assert.Equal(t, "✅ Update interval changed from 10.0 minutes to 2.0 hours", reply.Content)

	assert.Equal(t, "Current update interval: 2.0 hours", h.run("get_interval", nil).Content)

	for _, bad := range []string{"30", "2d", "soon", ""} {
		reply = h.run("set_interval", map[string]string{"interval": bad})
		assert.Equal(t, "❌ Update interval must be between 60 seconds and 24 hours (86400 seconds).", reply.Content, bad)
	}

	cfg, _ := h.reg.Get("g1")
	assert.Equal(t, 7200, cfg.UpdateInterval)
}

func TestForceUpdateCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	h.tracker.forceErr = tracker.ErrNotTracking
	assert.Equal(t, notTrackingReply, h.run("force_update", nil).Content)

	h.tracker.forceErr = errors.New("boom")
	assert.Equal(t, "❌ Error forcing update. Check logs for details.", h.run("force_update", nil).Content)

	h.tracker.forceErr = nil
	h.tracker.forceRes = &tracker.Result{GuildID: "g1", Nickname: "BTC: $43250.50+", Stale: true}
	reply := h.run("force_update", nil)
	assert.Contains(t, reply.Content, "✅ Forced price update completed!")
	assert.Contains(t, reply.Content, "`BTC: $43250.50+`")
	assert.Contains(t, reply.Content, "cached prices were used")
	assert.Equal(t, []string{"g1", "g1", "g1"}, h.tracker.forced)
}

func TestSetupCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	reply := h.run("setup", map[string]string{"config_channel": "111", "display_channel": "222"})
	assert.Equal(t, "✅ Setup complete! Check <#111> for configuration instructions.", reply.Content)

	sent := h.messenger.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "111", sent[0].channelID)
	assert.Equal(t, "🔧 Bot Setup", sent[0].embed.Title)

	cfg, _ := h.reg.Get("g1")
	assert.Equal(t, "111", cfg.ConfigChannelID)
	assert.Equal(t, "222", cfg.DisplayChannelID)

	h.messenger.err = errors.New("missing access")
	reply = h.run("setup", map[string]string{"config_channel": "111", "display_channel": "222"})
	assert.Contains(t, reply.Content, "Make sure the bot has permission")
}

func TestPriceStatusCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	assert.Equal(t, notTrackingReply, h.run("price_status", nil).Content)

	seedGuild(t, h.reg, "g1", "", "bitcoin", "solana")
	reply := h.run("price_status", nil)
	require.Len(t, reply.Embeds, 1)

	fields := reply.Embeds[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "BTC Price", fields[0].Name)
	assert.Contains(t, fields[0].Value, "**24h Change:** +2.10%")
	assert.Contains(t, fields[0].Value, "**Source:** Coingecko")
	assert.Equal(t, "SOL Price", fields[1].Name)
	assert.Contains(t, fields[1].Value, "Unable to fetch")
	assert.Equal(t, "Tracking Info", fields[2].Name)
	assert.Contains(t, fields[2].Value, "**Last Update:** never")
}

type fakeContract struct {
	state *goldilocks.State
	err   error
}

func (f *fakeContract) FetchState(context.Context) (*goldilocks.State, error) {
	return f.state, f.err
}

func TestPriceStatusCommand_ContractData(t *testing.T) {
	contract := &fakeContract{state: &goldilocks.State{
		FSL: 1000, PSL: 100, Supply: 2000, CirculatingSupply: 380,
		FloorPrice: 0.5, MarketPrice: 0.58857805, Price: 0.08857805,
	}}
	h := newCommandHarness(t, CommandOptions{Contract: contract})
	h.tracker.quotes["prg"] = prices.Quote{ID: "prg", Symbol: "PRG", Price: 0.08857805, Source: goldilocks.SourceName}
	seedGuild(t, h.reg, "g1", "", "prg")

	reply := h.run("price_status", nil)
	require.Len(t, reply.Embeds, 1)
	fields := reply.Embeds[0].Fields
	require.Len(t, fields, 4)
	assert.Contains(t, fields[0].Value, "Goldilocks Smart Contract")
	assert.NotContains(t, fields[0].Value, "24h Change")
	assert.Equal(t, "PRG Bonding Curve", fields[1].Name)
	assert.Contains(t, fields[1].Value, "**Floor Price:** $0.500000")
	assert.Contains(t, fields[2].Value, "**Supply:** 2000.000000")
}

func TestStatusCommand(t *testing.T) {
	contract := &fakeContract{err: errors.New("rpc down")}
	h := newCommandHarness(t, CommandOptions{Contract: contract})
	seedGuild(t, h.reg, "g1", "", "bitcoin")
	seedGuild(t, h.reg, "g2", "", "ethereum")
	_, err := h.reg.Update("g2", func(g *guilds.GuildConfig) error { return g.SetTracking(false) })
	require.NoError(t, err)

	reply := h.run("status", nil)
	require.Len(t, reply.Embeds, 1)
	fields := reply.Embeds[0].Fields
	require.Len(t, fields, 4)
	assert.Equal(t, "✅ Operational", fields[0].Value)
	assert.Equal(t, "❌ Not responding", fields[1].Value)
	assert.Contains(t, fields[2].Value, "Tracking: ✅ Active")
	assert.Contains(t, fields[2].Value, "Tokens: bitcoin")
	assert.Equal(t, "Total Servers: 2\nActive Tracking: 1", fields[3].Value)
}

func TestStatusCommand_Unconfigured(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	h.tracker.err = errors.New("rate limited")

	reply := h.run("status", nil)
	fields := reply.Embeds[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, "❌ Not responding", fields[0].Value)
	assert.Contains(t, fields[1].Value, "5.0 minutes (default)")
	assert.Contains(t, fields[1].Value, "❌ Not configured")
}

func TestChartCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})

	reply := h.run("chart", map[string]string{"token": "btc"})
	assert.Equal(t, "Not enough price history for BTC yet. Try again after a few updates.", reply.Content)

	now := time.Now()
	for i := 5; i >= 0; i-- {
		h.tracker.history.Add("bitcoin", now.Add(-time.Duration(i)*5*time.Minute), 43000+float64(i*10))
	}
	reply = h.run("chart", map[string]string{"token": "btc"})
	require.Len(t, reply.Files, 1)
	assert.Equal(t, "btc_24h.png", reply.Files[0].Name)
	assert.Equal(t, "image/png", reply.Files[0].ContentType)
	assert.Equal(t, "BTC, last 6 observations", reply.Content)
}

func TestSyncCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	assert.Equal(t, "❌ Failed to sync commands!", h.run("sync", nil).Content)

	h.handler.syncCommands = func(context.Context) (int, error) { return 12, nil }
	assert.Equal(t, "✅ Successfully synced 12 commands!\nAll commands should now be available.", h.run("sync", nil).Content)
}

func TestUnknownCommand(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	assert.Equal(t, "❌ Unknown command `nope`.", h.run("nope", nil).Content)
}

func TestHandleGuildDelete(t *testing.T) {
	h := newCommandHarness(t, CommandOptions{})
	seedGuild(t, h.reg, "g1", "", "bitcoin")

	h.handler.HandleGuildDelete(&discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1", Unavailable: true}})
	_, ok := h.reg.Get("g1")
	assert.True(t, ok, "outage must not remove the guild")

	h.handler.HandleGuildDelete(&discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1"}})
	_, ok = h.reg.Get("g1")
	assert.False(t, ok)

	h.handler.HandleGuildDelete(nil)
}

func TestOptionValues(t *testing.T) {
	got := optionValues([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "token", Type: discordgo.ApplicationCommandOptionString, Value: "btc"},
		{Name: "display_channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "222"},
		{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
	})
	assert.Equal(t, map[string]string{"token": "btc", "display_channel": "222", "count": "3"}, got)
}
