package bots_monitor

import (
	"context"

	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/tracker"
	logging "ticker-bot/internal/infra/log"

	"go.uber.org/zap"
)

// PriceLoop is the refresh loop run by the price monitor (tracker.Tracker).
type PriceLoop interface {
	Run(ctx context.Context) error
}

var _ PriceLoop = (*tracker.Tracker)(nil)

// RunPriceMonitor logs what is being tracked and runs the refresh loop until ctx is done.
func RunPriceMonitor(ctx context.Context, loop PriceLoop, registry *guilds.Registry) error {
	if loop == nil {
		logging.LogWarn("Price loop is nil, price monitor not started")
		return nil
	}

	total, tracking := registry.Stats()
	logging.LogInfo("Starting Price Monitor...",
		zap.Int("guilds", total),
		zap.Int("tracking", tracking))
	for _, g := range registry.Tracking() {
		logging.LogDebug("Tracking guild",
			zap.String("guild_id", g.GuildID),
			zap.Strings("tokens", g.Tokens),
			zap.Int("interval_s", g.UpdateInterval))
	}

	return loop.Run(ctx)
}
