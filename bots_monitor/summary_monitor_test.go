package bots_monitor

import (
	"context"
	"testing"
	"time"

	"ticker-bot/internal/features/prices"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSummaryEmbed(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	quotes := map[string]prices.Quote{
		"bitcoin": {ID: "bitcoin", Symbol: "BTC", Price: 43250.5, Change24h: 2.1, HasChange: true},
		"prg":     {ID: "prg", Symbol: "PRG", Price: 0.08857805, Stale: true},
	}

	embed := BuildSummaryEmbed([]string{"bitcoin", "prg", "solana"}, quotes, at)
	assert.Equal(t, "Daily Price Summary", embed.Title)
	assert.Equal(t, "2024-05-01T10:00:00Z", embed.Timestamp)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "$43250.5000 (+2.10% 24h)", embed.Fields[0].Value)
	assert.Equal(t, "$0.0886 (stale)", embed.Fields[1].Value)
	assert.Equal(t, "SOLANA", embed.Fields[2].Name)
	assert.Equal(t, "❌ Price unavailable", embed.Fields[2].Value)
}

func TestSummaryText(t *testing.T) {
	quotes := map[string]prices.Quote{
		"bitcoin": {ID: "bitcoin", Symbol: "BTC", Price: 43250.5, Change24h: -1, HasChange: true},
	}
	assert.Equal(t, "Daily Price Summary\nBTC: $43250.5000 (-1.00% 24h)", SummaryText([]string{"bitcoin", "ethereum"}, quotes))
}

func TestSummaryMonitor_SendAll(t *testing.T) {
	reg := newTestRegistry(t)
	seedGuild(t, reg, "g1", "d1", "bitcoin")
	seedGuild(t, reg, "g2", "", "ethereum")

	tr := newFakeTracker()
	tr.addQuote("bitcoin", "BTC", 43250.5, 2.1)
	tr.addQuote("ethereum", "ETH", 2280.75, -1.4)
	now := time.Now()
	for i := 3; i >= 0; i-- {
		tr.history.Add("bitcoin", now.Add(-time.Duration(i)*time.Hour), 43000+float64(i))
	}

	messenger := &fakeMessenger{}
	mirror := &fakeMirror{}
	m := NewSummaryMonitor(reg, tr, messenger, mirror, "")
	m.SendAll(context.Background())

	sent := messenger.messages()
	require.Len(t, sent, 1, "only guilds with a display channel get the summary")
	assert.Equal(t, "d1", sent[0].channelID)
	require.Len(t, sent[0].files, 1)
	assert.Equal(t, "btc_24h.png", sent[0].files[0].Name)
	assert.Equal(t, "attachment://btc_24h.png", sent[0].embed.Image.URL)

	require.Len(t, mirror.photos, 1)
	assert.Contains(t, mirror.texts[0], "BTC: $43250.5000")
	assert.Contains(t, mirror.texts[0], "ETH: $2280.7500")
}

func TestSummaryMonitor_NoHistorySendsText(t *testing.T) {
	reg := newTestRegistry(t)
	seedGuild(t, reg, "g1", "d1", "bitcoin")

	tr := newFakeTracker()
	tr.addQuote("bitcoin", "BTC", 43250.5, 2.1)
	messenger := &fakeMessenger{}
	mirror := &fakeMirror{}

	NewSummaryMonitor(reg, tr, messenger, mirror, "").SendAll(context.Background())

	sent := messenger.messages()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].files)
	assert.Nil(t, sent[0].embed.Image)
	assert.Empty(t, mirror.photos)
	assert.Len(t, mirror.texts, 1)
}

func TestSummaryMonitor_RunStopsOnCancel(t *testing.T) {
	reg := newTestRegistry(t)
	m := NewSummaryMonitor(reg, newFakeTracker(), &fakeMessenger{}, nil, "*/5 * * * *")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("summary monitor did not stop")
	}

	bad := NewSummaryMonitor(reg, newFakeTracker(), &fakeMessenger{}, nil, "not a cron")
	assert.Error(t, bad.Run(context.Background()))
}
