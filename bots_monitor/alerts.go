package bots_monitor

// Move alerts: a token whose 24h change crosses the threshold is announced in the guild's
// display channel (and mirrored to Telegram), at most once per cooldown per direction.
// A move that stays beyond the threshold is announced once; it re-arms after falling back inside.

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/ticker"
	logging "ticker-bot/internal/infra/log"
	"ticker-bot/internal/infra/metrics"

	"go.uber.org/zap"
)

type Alerter struct {
	messenger Messenger
	mirror    Mirror
	threshold float64
	cooldown  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	lastGuild  map[string]time.Time // guild|token|direction
	lastMirror map[string]time.Time // token|direction
	guildSide  map[string]int       // guild|token -> -1, 0, +1
	mirrorSide map[string]int       // token -> -1, 0, +1
}

func NewAlerter(messenger Messenger, mirror Mirror, thresholdPct float64, cooldown time.Duration) *Alerter {
	if thresholdPct <= 0 {
		thresholdPct = 10
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &Alerter{
		messenger:  messenger,
		mirror:     mirror,
		threshold:  thresholdPct,
		cooldown:   cooldown,
		now:        time.Now,
		lastGuild:  make(map[string]time.Time),
		lastMirror: make(map[string]time.Time),
		guildSide:  make(map[string]int),
		mirrorSide: make(map[string]int),
	}
}

// GuildRefreshed implements tracker.Observer.
func (a *Alerter) GuildRefreshed(ctx context.Context, guild *guilds.GuildConfig, quotes map[string]prices.Quote) {
	for _, token := range guild.Tokens {
		q, ok := quotes[token]
		if !ok || q.Stale || !q.HasChange {
			continue
		}
		side := a.sideOf(q.Change24h)
		guildCrossed := a.crossed(a.guildSide, guild.GuildID+"|"+token, side)
		mirrorCrossed := a.crossed(a.mirrorSide, token, side)
		if side == 0 {
			continue
		}
		direction := "up"
		if side < 0 {
			direction = "down"
		}
		text := FormatMoveAlert(q)

		if guildCrossed && guild.DisplayChannelID != "" && a.allow(a.lastGuild, guild.GuildID+"|"+token+"|"+direction) {
			err := a.messenger.SendMessage(ctx, guild.DisplayChannelID, text)
			metrics.RecordAlert("discord", err)
			if err != nil {
				logging.LogError("Failed to send move alert",
					zap.String("guild_id", guild.GuildID),
					zap.String("token", token),
					zap.Error(err))
			} else {
				logging.LogInfo("Move alert sent",
					zap.String("guild_id", guild.GuildID),
					zap.String("token", token),
					zap.Float64("change_24h", q.Change24h))
			}
		}

		if mirrorCrossed && a.mirror != nil && a.allow(a.lastMirror, token+"|"+direction) {
			err := a.mirror.Send(text)
			metrics.RecordAlert("telegram", err)
			if err != nil {
				logging.LogError("Failed to mirror move alert", zap.String("token", token), zap.Error(err))
			}
		}
	}
}

// sideOf is +1 or -1 beyond the threshold and 0 inside it.
func (a *Alerter) sideOf(change float64) int {
	switch {
	case change >= a.threshold:
		return 1
	case change <= -a.threshold:
		return -1
	default:
		return 0
	}
}

// crossed records side for key and reports whether it just moved beyond the threshold.
func (a *Alerter) crossed(sides map[string]int, key string, side int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := sides[key]
	sides[key] = side
	return side != 0 && side != prev
}

// allow records the send time when key is outside its cooldown.
func (a *Alerter) allow(last map[string]time.Time, key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if t, ok := last[key]; ok && now.Sub(t) < a.cooldown {
		return false
	}
	last[key] = now
	return true
}

func FormatMoveAlert(q prices.Quote) string {
	word := "up"
	mark := "📈"
	if q.Change24h < 0 {
		word = "down"
		mark = "📉"
	}
	return fmt.Sprintf("%s %s is %s %.1f%% in 24h, now $%s",
		mark, q.Symbol, word, math.Abs(q.Change24h), ticker.FormatPrice(q.Price, 4))
}
