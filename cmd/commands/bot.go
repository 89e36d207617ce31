package commands

// Command to run the Discord bot
// Wires config, guild store, price sources, Discord session, refresh loop, alerts, summary and metrics
// Implements graceful shutdown for proper termination

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ticker-bot/bots_monitor"
	"ticker-bot/internal/clients_api/discord"
	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/tracker"
	"ticker-bot/internal/infra/config"
	logging "ticker-bot/internal/infra/log"
	"ticker-bot/internal/infra/metrics"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Discord price ticker bot",
	Long:  `Run the bot: refresh loop, slash commands, move alerts, daily summary and the metrics/health server.`,
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logging.Sync()

	if err := cfg.ValidateForBot(); err != nil {
		logging.LogError("Invalid configuration", zap.Error(err))
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openGuildStore(cfg)
	if err != nil {
		logging.LogError("Failed to open guild store", zap.Error(err))
		return fmt.Errorf("failed to open guild store: %w", err)
	}
	registry := guilds.NewRegistry(store, cfg.Tracker.DefaultUpdateInterval)
	defer registry.Close()
	if err := registry.Load(); err != nil {
		return err
	}

	sources := newPriceSources(ctx, cfg)
	defer sources.Close()

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}

	cache := tracker.NewQuoteCache(sources.multi, cfg.Tracker.CacheTTL)
	priceTracker := tracker.New(registry, cache, session, tracker.NewHistory(cfg.Tracker.HistorySize), sources.catalog.Symbol, tracker.Options{
		TickInterval:        cfg.Tracker.TickInterval,
		MaxConcurrentGuilds: cfg.Tracker.MaxConcurrentGuilds,
		RoleName:            cfg.Discord.RoleName,
		StatusToken:         sources.catalog.Resolve(cfg.Tracker.StatusToken),
	})

	mirror := newMirror(cfg)
	priceTracker.AddObserver(bots_monitor.NewAlerter(session, mirror, cfg.Alerts.ThresholdPct, cfg.Alerts.Cooldown))

	cmdOpts := bots_monitor.CommandOptions{
		MaxTokens:     cfg.Tracker.MaxTokens,
		DefaultTokens: cfg.Tokens.Default,
	}
	if sources.contract != nil {
		cmdOpts.Contract = sources.contract
	}
	handler := bots_monitor.NewCommandHandler(registry, priceTracker, session, sources.catalog, cmdOpts)
	handler.Attach(session.Raw(), cfg.Discord.DevGuildID)

	if err := session.Open(ctx); err != nil {
		logging.LogError("Failed to connect to Discord", zap.Error(err))
		return err
	}
	defer session.Close()

	var server *metrics.Server
	if cfg.App.MetricsAddr != "" {
		server = metrics.NewServer(cfg.App.MetricsAddr, healthChecks(session, sources))
		server.Start()
	}

	var wg sync.WaitGroup
	startMonitors(ctx, &wg, cfg, registry, priceTracker, session, mirror)

	logging.LogSuccess("Bot is running", zap.String("status", "active"))

	<-ctx.Done()
	logging.LogInfo("Shutdown signal received, gracefully stopping all monitors...")

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.LogSuccess("All monitors stopped gracefully")
	case <-time.After(10 * time.Second):
		logging.LogWarn("Timeout waiting for monitors to stop, forcing shutdown")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.LogWarn("Metrics server shutdown failed", zap.Error(err))
		}
	}

	return nil
}

// newMirror returns nil when Telegram is not configured or unreachable.
func newMirror(cfg *config.Config) bots_monitor.Mirror {
	tg, err := bots_monitor.NewTelegramMirror(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		logging.LogWarn("Failed to initialize Telegram mirror (continuing without it)", zap.Error(err))
		return nil
	}
	if tg == nil {
		return nil
	}
	logging.LogSuccess("Telegram mirror enabled", zap.Int64("chatID", cfg.Telegram.ChatID))
	return tg
}

func startMonitors(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, registry *guilds.Registry,
	priceTracker *tracker.Tracker, session *discord.Session, mirror bots_monitor.Mirror) {

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bots_monitor.RunPriceMonitor(ctx, priceTracker, registry); err != nil {
			logging.LogError("Price monitor stopped with error", zap.Error(err))
		}
	}()

	if cfg.Alerts.SummaryCron != "" {
		summary := bots_monitor.NewSummaryMonitor(registry, priceTracker, session, mirror, cfg.Alerts.SummaryCron)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := summary.Run(ctx); err != nil {
				logging.LogError("Summary monitor stopped with error", zap.Error(err))
			}
		}()
	}
}

func healthChecks(session *discord.Session, sources *priceSources) metrics.HealthFunc {
	return func(ctx context.Context) map[string]error {
		out := map[string]error{}
		if !session.Ready() {
			out["discord"] = fmt.Errorf("gateway session is not ready")
		}
		// CoinGecko is not pinged here: probes would spend the shared rate limit
		if sources.contract != nil {
			if _, err := sources.contract.BlockNumber(ctx); err != nil {
				out["berachain"] = err
			}
		}
		return out
	}
}
