package bots_monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/tracker"
	"ticker-bot/internal/infra/kv"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	channelID string
	content   string
	embed     *discordgo.MessageEmbed
	files     []*discordgo.File
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeMessenger) SendMessage(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content})
	return nil
}

func (f *fakeMessenger) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed, files ...*discordgo.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, embed: embed, files: files})
	return nil
}

func (f *fakeMessenger) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeMirror struct {
	mu     sync.Mutex
	texts  []string
	photos []string
}

func (f *fakeMirror) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMirror) SendPhoto(caption, name string, png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(png) == 0 {
		return errors.New("empty photo")
	}
	f.photos = append(f.photos, name)
	f.texts = append(f.texts, caption)
	return nil
}

type fakeTracker struct {
	quotes   map[string]prices.Quote
	err      error
	forceRes *tracker.Result
	forceErr error
	history  *tracker.History
	forced   []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{quotes: map[string]prices.Quote{}, history: tracker.NewHistory(0)}
}

func (f *fakeTracker) ForceUpdate(_ context.Context, guildID string) (*tracker.Result, error) {
	f.forced = append(f.forced, guildID)
	return f.forceRes, f.forceErr
}

func (f *fakeTracker) Quotes(_ context.Context, ids []string) (map[string]prices.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]prices.Quote{}
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	if missing := prices.MissingIDs(ids, out); len(missing) > 0 {
		return out, &prices.NotFoundError{IDs: missing}
	}
	return out, nil
}

func (f *fakeTracker) History() *tracker.History { return f.history }

func (f *fakeTracker) addQuote(id, symbol string, price, change float64) {
	f.quotes[id] = prices.Quote{
		ID:        id,
		Symbol:    symbol,
		Price:     price,
		Change24h: change,
		HasChange: true,
		Source:    "coingecko",
		FetchedAt: time.Now(),
	}
}

func newTestRegistry(t *testing.T) *guilds.Registry {
	t.Helper()
	store, err := kv.OpenGuildStore(":memory:")
	require.NoError(t, err)
	reg := guilds.NewRegistry(store, 0)
	require.NoError(t, reg.Load())
	t.Cleanup(func() { reg.Close() })
	return reg
}

// seedGuild stores a tracking guild with tokens and a display channel.
func seedGuild(t *testing.T, reg *guilds.Registry, guildID, displayChannel string, tokens ...string) {
	t.Helper()
	_, err := reg.Update(guildID, func(g *guilds.GuildConfig) error {
		for _, token := range tokens {
			if err := g.AddToken(token, 0); err != nil {
				return err
			}
		}
		g.SetChannels("cfg-"+guildID, displayChannel)
		return g.SetTracking(true)
	})
	require.NoError(t, err)
}
