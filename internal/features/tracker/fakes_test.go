package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/infra/kv"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  [][]string
	clock  *fakeClock
	block  chan struct{}
}

func newFakeSource(clock *fakeClock, prices map[string]float64) *fakeSource {
	return &fakeSource{prices: prices, clock: clock}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchQuotes(ctx context.Context, ids []string) (map[string]prices.Quote, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]prices.Quote{}
	for _, id := range ids {
		p, ok := f.prices[id]
		if !ok {
			continue
		}
		out[id] = prices.Quote{
			ID:        id,
			Symbol:    symbolFor(id),
			Price:     p,
			Change24h: 1.5,
			HasChange: true,
			Source:    "fake",
			FetchedAt: f.clock.Now(),
		}
	}
	if missing := prices.MissingIDs(ids, out); len(missing) > 0 {
		return out, &prices.NotFoundError{IDs: missing}
	}
	return out, nil
}

func (f *fakeSource) set(id string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[id] = price
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func symbolFor(id string) string {
	switch id {
	case "bitcoin":
		return "BTC"
	case "ethereum":
		return "ETH"
	default:
		return "X"
	}
}

type fakeDisplay struct {
	mu         sync.Mutex
	nicknames  map[string]string
	colors     map[string]int
	roles      map[string]string
	statuses   []string
	failNick   map[string]bool
	panicGuild string

	deletedRoles map[string]bool
	ensureCalls  int
	colorErrors  int

	// onNickname runs after a nickname is pushed
	onNickname func(guildID string)
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		nicknames: map[string]string{},
		colors:    map[string]int{},
		roles:     map[string]string{},
		failNick:  map[string]bool{},

		deletedRoles: map[string]bool{},
	}
}

func (d *fakeDisplay) SetNickname(_ context.Context, guildID, nickname string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if guildID == d.panicGuild {
		panic("display exploded")
	}
	if d.failNick[guildID] {
		return errors.New("missing permissions")
	}
	d.nicknames[guildID] = nickname
	if d.onNickname != nil {
		d.onNickname(guildID)
	}
	return nil
}

func (d *fakeDisplay) EnsureRole(_ context.Context, guildID, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureCalls++
	id := "role-" + guildID
	d.roles[guildID] = name
	return id, nil
}

func (d *fakeDisplay) SetRoleColor(_ context.Context, guildID, roleID string, color int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deletedRoles[roleID] {
		d.colorErrors++
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	d.colors[guildID] = color
	return nil
}

func (d *fakeDisplay) SetStatus(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses = append(d.statuses, text)
	return nil
}

func (d *fakeDisplay) nick(guildID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nicknames[guildID]
	return n, ok
}

func (d *fakeDisplay) color(guildID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.colors[guildID]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (o *recordingObserver) GuildRefreshed(_ context.Context, guild *guilds.GuildConfig, _ map[string]prices.Quote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[guild.GuildID]++
}

type harness struct {
	clock    *fakeClock
	source   *fakeSource
	display  *fakeDisplay
	registry *guilds.Registry
	cache    *QuoteCache
	tracker  *Tracker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newFakeClock()
	source := newFakeSource(clock, map[string]float64{"bitcoin": 100, "ethereum": 10})

	store, err := kv.OpenGuildStore(":memory:")
	require.NoError(t, err)
	registry := guilds.NewRegistry(store, 300)
	require.NoError(t, registry.Load())
	t.Cleanup(func() { registry.Close() })

	cache := NewQuoteCache(source, time.Minute)
	cache.now = clock.Now

	display := newFakeDisplay()
	tr := New(registry, cache, display, NewHistory(10), symbolFor, Options{
		TickInterval:        10 * time.Millisecond,
		MaxConcurrentGuilds: 2,
	})
	tr.now = clock.Now

	return &harness{
		clock:    clock,
		source:   source,
		display:  display,
		registry: registry,
		cache:    cache,
		tracker:  tr,
	}
}

func (h *harness) track(t *testing.T, guildID string, tokens ...string) {
	t.Helper()
	_, err := h.registry.Update(guildID, func(g *guilds.GuildConfig) error {
		for _, tok := range tokens {
			if err := g.AddToken(tok, 2); err != nil {
				return err
			}
		}
		return g.SetTracking(true)
	})
	require.NoError(t, err)
}
