package tracker

// Refresh loop
// A base ticker wakes the loop; each tick refreshes the guilds whose interval elapsed.
// All due tokens are priced with one cached fetch, then guilds are pushed with bounded concurrency.

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/ticker"
	logging "ticker-bot/internal/infra/log"
	"ticker-bot/internal/infra/metrics"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotTracking = errors.New("guild is not tracking")
	ErrNoQuotes    = errors.New("no price available for any tracked token")
)

const (
	DisplayNickname  = "nickname"
	DisplayRole      = "role"
	DisplayRoleColor = "role_color"
	DisplayStatus    = "status"
)

type Options struct {
	TickInterval        time.Duration
	MaxConcurrentGuilds int
	RoleName            string
	// StatusToken pins the presence text to one token; empty uses the primary token
	StatusToken string
}

// Result describes one pushed guild refresh.
type Result struct {
	GuildID  string
	Nickname string
	Quotes   []prices.Quote // in the guild's token order
	Trend    ticker.Trend   // of the primary token
	Stale    bool           // at least one quote was stale
}

type Tracker struct {
	registry *guilds.Registry
	cache    *QuoteCache
	display  Display
	history  *History
	symbol   func(string) string
	opts     Options
	now      func() time.Time

	observers []Observer

	statusMu   sync.Mutex
	lastStatus string

	locksMu    sync.Mutex
	guildLocks map[string]*sync.Mutex
}

func New(registry *guilds.Registry, cache *QuoteCache, display Display, history *History, symbol func(string) string, opts Options) *Tracker {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 15 * time.Second
	}
	if opts.MaxConcurrentGuilds <= 0 {
		opts.MaxConcurrentGuilds = 4
	}
	if opts.RoleName == "" {
		opts.RoleName = "Price Ticker"
	}
	if history == nil {
		history = NewHistory(0)
	}
	if symbol == nil {
		symbol = func(id string) string { return id }
	}
	return &Tracker{
		registry:   registry,
		cache:      cache,
		display:    display,
		history:    history,
		symbol:     symbol,
		opts:       opts,
		now:        time.Now,
		guildLocks: make(map[string]*sync.Mutex),
	}
}

// AddObserver must be called before Run.
func (t *Tracker) AddObserver(o Observer) {
	t.observers = append(t.observers, o)
}

func (t *Tracker) History() *History { return t.history }

// Quotes prices ids through the cache (commands, summaries).
func (t *Tracker) Quotes(ctx context.Context, ids []string) (map[string]prices.Quote, error) {
	return t.cache.Get(ctx, ids)
}

// Run ticks until ctx is cancelled. The first tick runs immediately.
func (t *Tracker) Run(ctx context.Context) error {
	logging.LogInfo("Price tracker started", zap.Duration("tick", t.opts.TickInterval))

	tk := time.NewTicker(t.opts.TickInterval)
	defer tk.Stop()

	for {
		t.Tick(ctx)

		select {
		case <-ctx.Done():
			logging.LogInfo("Price tracker stopped")
			return nil
		case <-tk.C:
		}
	}
}

// Tick refreshes every due guild once.
func (t *Tracker) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := t.now()

	tracking := t.registry.Tracking()
	metrics.SetTrackedGuilds(len(tracking))

	due := lo.Filter(tracking, func(g *guilds.GuildConfig, _ int) bool { return g.Due(now) })
	if len(due) == 0 {
		return
	}
	start := time.Now()
	defer func() { metrics.ObserveRefresh(time.Since(start)) }()

	ids := lo.Uniq(lo.FlatMap(due, func(g *guilds.GuildConfig, _ int) []string { return g.Tokens }))
	quotes, err := t.cache.Get(ctx, ids)
	if err != nil {
		logging.LogWarn("Price fetch failed", zap.Strings("ids", ids), zap.Error(err))
	}
	t.recordHistory(quotes)

	logging.LogDebug("Refreshing due guilds",
		zap.Int("due", len(due)),
		zap.Int("quotes", len(quotes)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.MaxConcurrentGuilds)
	for _, cfg := range due {
		g.Go(func() error {
			if _, err := t.refreshGuild(gctx, cfg.GuildID, quotes); err != nil && !errors.Is(err, context.Canceled) {
				logging.LogWarn("Guild refresh skipped", zap.String("guild_id", cfg.GuildID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ForceUpdate refreshes one guild now, ignoring its schedule and the cache TTL.
func (t *Tracker) ForceUpdate(ctx context.Context, guildID string) (*Result, error) {
	cfg, ok := t.registry.Get(guildID)
	if !ok || !cfg.Tracking || len(cfg.Tokens) == 0 {
		return nil, ErrNotTracking
	}

	quotes, err := t.cache.Refresh(ctx, cfg.Tokens)
	if err != nil {
		logging.LogWarn("Forced price fetch failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	t.recordHistory(quotes)

	return t.refreshGuild(ctx, guildID, quotes)
}

func (t *Tracker) recordHistory(quotes map[string]prices.Quote) {
	for id, q := range quotes {
		if !q.Stale {
			t.history.Add(id, q.FetchedAt, q.Price)
		}
	}
}

func (t *Tracker) guildLock(guildID string) *sync.Mutex {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()
	mu, ok := t.guildLocks[guildID]
	if !ok {
		mu = &sync.Mutex{}
		t.guildLocks[guildID] = mu
	}
	return mu
}

// refreshGuild pushes one guild's display. Panics are turned into errors.
func (t *Tracker) refreshGuild(ctx context.Context, guildID string, quotes map[string]prices.Quote) (res *Result, err error) {
	mu := t.guildLock(guildID)
	mu.Lock()
	defer mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.LogError("Panic while refreshing guild",
				zap.String("guild_id", guildID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res, err = nil, fmt.Errorf("panic while refreshing guild %s: %v", guildID, r)
		}
	}()

	// re-read: commands may have changed the guild since the tick started
	cfg, ok := t.registry.Get(guildID)
	if !ok || !cfg.Tracking {
		return nil, ErrNotTracking
	}

	res = &Result{GuildID: guildID}
	var parts []ticker.Part
	fresh := make(map[string]float64)
	for _, token := range cfg.Tokens {
		q, ok := quotes[token]
		if !ok {
			continue
		}
		if q.ID == "" {
			q.ID = token
		}
		if q.Symbol == "" {
			q.Symbol = t.symbol(token)
		}
		trend := ticker.TrendOf(q.Price, cfg.LastPrices[token])
		parts = append(parts, ticker.Part{Symbol: q.Symbol, Price: q.Price, Trend: trend})
		res.Quotes = append(res.Quotes, q)
		if q.Stale {
			res.Stale = true
		} else {
			fresh[token] = q.Price
		}
	}
	if len(parts) == 0 {
		return nil, ErrNoQuotes
	}
	res.Trend = parts[0].Trend
	res.Nickname = ticker.FitNickname(parts, ticker.NicknameLimit)

	err = t.display.SetNickname(ctx, guildID, res.Nickname)
	metrics.RecordDisplayUpdate(DisplayNickname, err)
	if err != nil {
		logging.LogError("Failed to update nickname", zap.String("guild_id", guildID), zap.Error(err))
	}

	roleID := t.updateRoleColor(ctx, cfg, res.Trend)
	t.updateStatus(ctx, res.Quotes)

	// the guild may have been removed while its display was pushed
	updated, err := t.registry.UpdateExisting(guildID, func(g *guilds.GuildConfig) error {
		if roleID != "" {
			g.SetRole(roleID)
		}
		g.RecordPrices(fresh, t.now())
		return nil
	})
	if errors.Is(err, guilds.ErrUnknownGuild) {
		return nil, ErrNotTracking
	}
	if err != nil {
		logging.LogError("Failed to save guild prices", zap.String("guild_id", guildID), zap.Error(err))
		updated = cfg
	}

	logging.LogInfo("Guild display updated",
		zap.String("guild_id", guildID),
		zap.String("nickname", res.Nickname),
		zap.String("trend", res.Trend.String()),
		zap.Bool("stale", res.Stale))

	byID := lo.SliceToMap(res.Quotes, func(q prices.Quote) (string, prices.Quote) { return q.ID, q })
	for _, o := range t.observers {
		o.GuildRefreshed(ctx, updated, byID)
	}
	return res, nil
}

// updateRoleColor colors the ticker role and returns its id. A stored role that was
// deleted from the guild is re-created once.
func (t *Tracker) updateRoleColor(ctx context.Context, cfg *guilds.GuildConfig, trend ticker.Trend) string {
	roleID := cfg.RoleID
	if roleID == "" {
		roleID = t.ensureRole(ctx, cfg.GuildID)
		if roleID == "" {
			return ""
		}
	}

	err := t.display.SetRoleColor(ctx, cfg.GuildID, roleID, trend.Color())
	if errors.Is(err, ErrRoleNotFound) && cfg.RoleID != "" {
		logging.LogWarn("Ticker role is gone, recreating it",
			zap.String("guild_id", cfg.GuildID),
			zap.String("role_id", roleID))
		roleID = t.ensureRole(ctx, cfg.GuildID)
		if roleID == "" {
			return ""
		}
		err = t.display.SetRoleColor(ctx, cfg.GuildID, roleID, trend.Color())
	}
	metrics.RecordDisplayUpdate(DisplayRoleColor, err)
	if err != nil {
		logging.LogError("Failed to update role color", zap.String("guild_id", cfg.GuildID), zap.Error(err))
	}
	return roleID
}

func (t *Tracker) ensureRole(ctx context.Context, guildID string) string {
	id, err := t.display.EnsureRole(ctx, guildID, t.opts.RoleName)
	metrics.RecordDisplayUpdate(DisplayRole, err)
	if err != nil {
		logging.LogError("Failed to ensure ticker role", zap.String("guild_id", guildID), zap.Error(err))
		return ""
	}
	return id
}

// updateStatus sets the global presence; unchanged text is not re-sent.
func (t *Tracker) updateStatus(ctx context.Context, quotes []prices.Quote) {
	q := quotes[0]
	if t.opts.StatusToken != "" {
		if pinned, ok := lo.Find(quotes, func(q prices.Quote) bool { return q.ID == t.opts.StatusToken }); ok {
			q = pinned
		}
	}
	text := ticker.FormatStatus(q.Symbol, q.Change24h, q.HasChange)

	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	if text == t.lastStatus {
		return
	}
	err := t.display.SetStatus(ctx, text)
	metrics.RecordDisplayUpdate(DisplayStatus, err)
	if err != nil {
		logging.LogError("Failed to update status", zap.Error(err))
		return
	}
	t.lastStatus = text
}
