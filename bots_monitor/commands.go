package bots_monitor

// Discord slash commands
// Execute holds the command logic and is transport free; HandleInteraction adapts discordgo interactions to it

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ticker-bot/internal/clients_api/goldilocks"
	"ticker-bot/internal/features/charts"
	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/ticker"
	"ticker-bot/internal/features/tracker"
	logging "ticker-bot/internal/infra/log"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	infoColor = 0x3498DB

	notTrackingReply = "Price tracking is not active in this server. Use `/track` and `/start` to begin."
	noTokensReply    = "No tokens are being tracked in this server yet."
)

// PriceTracker is the part of tracker.Tracker commands and summaries use.
type PriceTracker interface {
	ForceUpdate(ctx context.Context, guildID string) (*tracker.Result, error)
	Quotes(ctx context.Context, ids []string) (map[string]prices.Quote, error)
	History() *tracker.History
}

var _ PriceTracker = (*tracker.Tracker)(nil)

// ContractReader exposes the raw Goldilocks contract state for /price_status and /status.
type ContractReader interface {
	FetchState(ctx context.Context) (*goldilocks.State, error)
}

// Request is one slash command invocation. Options holds string values keyed by option name
// (channel options carry the channel id).
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
	Options   map[string]string
}

type Reply struct {
	Content string
	Embeds  []*discordgo.MessageEmbed
	Files   []*discordgo.File
}

type CommandHandler struct {
	registry      *guilds.Registry
	tracker       PriceTracker
	messenger     Messenger
	catalog       *prices.Catalog
	contract      ContractReader
	maxTokens     int
	defaultTokens []string

	syncCommands func(ctx context.Context) (int, error)
}

type CommandOptions struct {
	MaxTokens     int
	DefaultTokens []string
	// Contract may be nil when the on-chain source is disabled
	Contract ContractReader
}

func NewCommandHandler(registry *guilds.Registry, tr PriceTracker, messenger Messenger, catalog *prices.Catalog, opts CommandOptions) *CommandHandler {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2
	}
	if catalog == nil {
		catalog = prices.NewCatalog(nil, nil)
	}
	return &CommandHandler{
		registry:      registry,
		tracker:       tr,
		messenger:     messenger,
		catalog:       catalog,
		contract:      opts.Contract,
		maxTokens:     opts.MaxTokens,
		defaultTokens: opts.DefaultTokens,
	}
}

// Definitions returns the slash commands registered with Discord.
func (h *CommandHandler) Definitions() []*discordgo.ApplicationCommand {
	admin := int64(discordgo.PermissionAdministrator)
	noDM := false

	tokenOption := func(desc string) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "token",
			Description: desc,
			Required:    true,
		}}
	}

	return []*discordgo.ApplicationCommand{
		{Name: "track", Description: "Add a token to this server's price display", DefaultMemberPermissions: &admin, DMPermission: &noDM,
			Options: tokenOption("Token id or symbol, e.g. bitcoin, btc, locks, prg")},
		{Name: "untrack", Description: "Remove a token from this server's price display", DefaultMemberPermissions: &admin, DMPermission: &noDM,
			Options: tokenOption("Token id or symbol")},
		{Name: "start", Description: "Start price tracking in this server", DefaultMemberPermissions: &admin, DMPermission: &noDM},
		{Name: "stop", Description: "Stop price tracking in this server", DefaultMemberPermissions: &admin, DMPermission: &noDM},
		{Name: "price_status", Description: "Show tracked prices and tracking status", DMPermission: &noDM},
		{Name: "status", Description: "Check bot status and price source health", DMPermission: &noDM},
		{Name: "set_interval", Description: "Set the price update interval (60 seconds to 24 hours)", DefaultMemberPermissions: &admin, DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "interval",
				Description: "Seconds or a duration such as 5m or 1h30m",
				Required:    true,
			}}},
		{Name: "get_interval", Description: "Show current price update interval", DMPermission: &noDM},
		{Name: "force_update", Description: "Force an immediate price update", DefaultMemberPermissions: &admin, DMPermission: &noDM},
		{Name: "setup", Description: "Setup bot configuration and display channels", DefaultMemberPermissions: &admin, DMPermission: &noDM,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "config_channel",
					Description:  "Channel for bot configuration commands",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					Required:     true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "display_channel",
					Description:  "Channel where alerts and summaries will be shown",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					Required:     true,
				},
			}},
		{Name: "chart", Description: "Draw the recent price chart of a token", DMPermission: &noDM,
			Options: tokenOption("Token id or symbol")},
		{Name: "sync", Description: "Sync all slash commands (Admin only)", DefaultMemberPermissions: &admin, DMPermission: &noDM},
	}
}

// Attach registers interaction and guild removal handlers. Call before the session is opened.
// devGuildID scopes command registration to one guild.
func (h *CommandHandler) Attach(dg *discordgo.Session, devGuildID string) {
	h.syncCommands = func(ctx context.Context) (int, error) {
		return h.register(ctx, dg, devGuildID)
	}

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := h.register(ctx, s, devGuildID)
		if err != nil {
			logging.LogError("Failed to register slash commands", zap.Error(err))
			return
		}
		logging.LogSuccess("Slash commands registered",
			zap.Int("commands", n),
			zap.Int("guilds", len(r.Guilds)))
	})

	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h.HandleInteraction(s, i)
	})

	dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) {
		h.HandleGuildDelete(g)
	})
}

func (h *CommandHandler) register(ctx context.Context, dg *discordgo.Session, devGuildID string) (int, error) {
	if dg.State == nil || dg.State.User == nil {
		return 0, errors.New("session is not ready")
	}
	cmds, err := dg.ApplicationCommandBulkOverwrite(dg.State.User.ID, devGuildID, h.Definitions(), discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to overwrite application commands: %w", err)
	}
	return len(cmds), nil
}

// HandleGuildDelete forgets a guild the bot was removed from. Outages (Unavailable) are ignored.
func (h *CommandHandler) HandleGuildDelete(g *discordgo.GuildDelete) {
	if g == nil || g.Guild == nil || g.Unavailable {
		return
	}
	if err := h.registry.Remove(g.ID); err != nil {
		logging.LogError("Failed to clean up removed guild", zap.String("guild_id", g.ID), zap.Error(err))
		return
	}
	logging.LogInfo("Cleaned up tracking for removed guild", zap.String("guild_id", g.ID))
}

// HandleInteraction defers the response, runs the command and edits the deferred reply.
func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	req := Request{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   optionValues(data.Options),
	}
	if i.Member != nil && i.Member.User != nil {
		req.UserID = i.Member.User.ID
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		logging.LogError("Failed to defer interaction", zap.String("command", data.Name), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	reply := h.Execute(ctx, data.Name, req)

	edit := &discordgo.WebhookEdit{Files: reply.Files}
	if reply.Content != "" {
		edit.Content = &reply.Content
	}
	if len(reply.Embeds) > 0 {
		edit.Embeds = &reply.Embeds
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		logging.LogError("Failed to send command reply", zap.String("command", data.Name), zap.Error(err))
		return
	}

	logging.LogDebug("Command handled",
		zap.String("command", data.Name),
		zap.String("guild_id", req.GuildID),
		zap.String("user_id", req.UserID),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
}

func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(opts))
	for _, opt := range opts {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			out[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			out[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		default:
			out[opt.Name] = fmt.Sprint(opt.Value)
		}
	}
	return out
}

// Execute runs one command and returns the reply to show.
func (h *CommandHandler) Execute(ctx context.Context, name string, req Request) Reply {
	if req.GuildID == "" {
		return Reply{Content: "❌ This command can only be used in a server."}
	}

	switch name {
	case "track":
		return h.handleTrackCommand(ctx, req)
	case "untrack":
		return h.handleUntrackCommand(req)
	case "start":
		return h.handleStartCommand(ctx, req)
	case "stop":
		return h.handleStopCommand(req)
	case "price_status":
		return h.handlePriceStatusCommand(ctx, req)
	case "status":
		return h.handleStatusCommand(ctx, req)
	case "set_interval":
		return h.handleSetIntervalCommand(req)
	case "get_interval":
		return h.handleGetIntervalCommand(req)
	case "force_update":
		return h.handleForceUpdateCommand(ctx, req)
	case "setup":
		return h.handleSetupCommand(ctx, req)
	case "chart":
		return h.handleChartCommand(req)
	case "sync":
		return h.handleSyncCommand(ctx)
	default:
		logging.LogWarn("Unknown command", zap.String("command", name))
		return Reply{Content: fmt.Sprintf("❌ Unknown command `%s`.", name)}
	}
}

func (h *CommandHandler) handleTrackCommand(ctx context.Context, req Request) Reply {
	input := strings.TrimSpace(req.Options["token"])
	if input == "" {
		return Reply{Content: "Usage: /track {token}\n\nExample: /track bitcoin"}
	}
	id := h.catalog.Resolve(input)

	if cfg, ok := h.registry.Get(req.GuildID); ok && cfg.HasToken(id) {
		return Reply{Content: fmt.Sprintf("⚠️ %s is already being tracked in this server.", h.catalog.Symbol(id))}
	}

	// the token must be priceable before it is stored
	quotes, err := h.tracker.Quotes(ctx, []string{id})
	q, found := quotes[id]
	if !found {
		if err != nil && !errors.Is(err, prices.ErrTokenNotFound) {
			logging.LogError("Failed to verify token", zap.String("token", id), zap.Error(err))
			return Reply{Content: "❌ Error fetching the price right now. Please try again later."}
		}
		return Reply{Content: fmt.Sprintf("❌ Token `%s` was not found. Use the pricing id (e.g. `bitcoin`) or a known symbol.", input)}
	}

	_, err = h.registry.Update(req.GuildID, func(g *guilds.GuildConfig) error {
		return g.AddToken(id, h.maxTokens)
	})
	switch {
	case errors.Is(err, guilds.ErrTooManyTokens):
		return Reply{Content: fmt.Sprintf("❌ A server can track at most %d tokens. Use `/untrack` first.", h.maxTokens)}
	case errors.Is(err, guilds.ErrTokenAlreadyTracked):
		return Reply{Content: fmt.Sprintf("⚠️ %s is already being tracked in this server.", h.catalog.Symbol(id))}
	case err != nil:
		logging.LogError("Failed to add token", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error saving the server configuration. Check logs for details."}
	}

	logging.LogInfo("Token added", zap.String("guild_id", req.GuildID), zap.String("token", id))
	return Reply{Content: fmt.Sprintf("✅ Now tracking %s (`%s`), current price $%s.\nUse `/start` to begin price updates.",
		q.Symbol, id, ticker.FormatPrice(q.Price, 6))}
}

func (h *CommandHandler) handleUntrackCommand(req Request) Reply {
	input := strings.TrimSpace(req.Options["token"])
	if input == "" {
		return Reply{Content: "Usage: /untrack {token}\n\nExample: /untrack bitcoin"}
	}
	id := h.catalog.Resolve(input)

	cfg, err := h.registry.UpdateExisting(req.GuildID, func(g *guilds.GuildConfig) error {
		return g.RemoveToken(id)
	})
	switch {
	case errors.Is(err, guilds.ErrUnknownGuild), errors.Is(err, guilds.ErrTokenNotTracked):
		return Reply{Content: fmt.Sprintf("❌ %s is not being tracked in this server.", h.catalog.Symbol(id))}
	case err != nil:
		logging.LogError("Failed to remove token", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error saving the server configuration. Check logs for details."}
	}

	content := fmt.Sprintf("✅ Stopped tracking %s.", h.catalog.Symbol(id))
	if !cfg.Tracking {
		content += "\nNo tokens left, price tracking is now stopped."
	}
	return Reply{Content: content}
}

func (h *CommandHandler) handleStartCommand(ctx context.Context, req Request) Reply {
	if cfg, ok := h.registry.Get(req.GuildID); ok && cfg.Tracking {
		return Reply{Content: "⚠️ **Price tracking is already active in this server!**\n\nUse `/price_status` to see the current prices."}
	}

	cfg, err := h.registry.Update(req.GuildID, func(g *guilds.GuildConfig) error {
		if len(g.Tokens) == 0 {
			for _, token := range h.defaultTokens {
				if err := g.AddToken(h.catalog.Resolve(token), h.maxTokens); err != nil && !errors.Is(err, guilds.ErrTokenAlreadyTracked) {
					break
				}
			}
		}
		return g.SetTracking(true)
	})
	if errors.Is(err, guilds.ErrNoTokens) {
		return Reply{Content: "❌ No tokens configured. Use `/track {token}` first."}
	}
	if err != nil {
		logging.LogError("Failed to start tracking", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error saving the server configuration. Check logs for details."}
	}

	logging.LogInfo("Tracking started", zap.String("guild_id", req.GuildID), zap.Strings("tokens", cfg.Tokens))

	interval := ticker.HumanInterval(cfg.UpdateInterval)
	quotes, _ := h.tracker.Quotes(ctx, cfg.Tokens)
	if len(quotes) == 0 {
		return Reply{Content: "⚠️ Price tracking started, but there was an error fetching the initial price.\n" +
			"The bot will retry in the next update cycle."}
	}

	var b strings.Builder
	b.WriteString("✅ Successfully started price tracking!\n")
	for _, token := range cfg.Tokens {
		if q, ok := quotes[token]; ok {
			fmt.Fprintf(&b, "Current %s price: $%s\n", q.Symbol, ticker.FormatPrice(q.Price, 6))
		}
	}
	fmt.Fprintf(&b, "The bot will update prices every %s.", interval)
	return Reply{Content: b.String()}
}

func (h *CommandHandler) handleStopCommand(req Request) Reply {
	cfg, ok := h.registry.Get(req.GuildID)
	if !ok || !cfg.Tracking {
		return Reply{Content: "❌ Price tracking is not active in this server."}
	}
	if _, err := h.registry.Update(req.GuildID, func(g *guilds.GuildConfig) error {
		return g.SetTracking(false)
	}); err != nil {
		logging.LogError("Failed to stop tracking", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error saving the server configuration. Check logs for details."}
	}
	logging.LogInfo("Tracking stopped", zap.String("guild_id", req.GuildID))
	return Reply{Content: "✅ Stopped price tracking."}
}

func (h *CommandHandler) handlePriceStatusCommand(ctx context.Context, req Request) Reply {
	cfg, ok := h.registry.Get(req.GuildID)
	if !ok || !cfg.Tracking {
		return Reply{Content: notTrackingReply}
	}

	embed := &discordgo.MessageEmbed{Title: "Price Status", Color: infoColor}

	quotes, err := h.tracker.Quotes(ctx, cfg.Tokens)
	if err != nil {
		logging.LogWarn("Price status fetch incomplete", zap.String("guild_id", req.GuildID), zap.Error(err))
	}
	for _, token := range cfg.Tokens {
		q, ok := quotes[token]
		if !ok {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  h.catalog.Symbol(token) + " Price",
				Value: "❌ Unable to fetch price",
			})
			continue
		}
		value := fmt.Sprintf("**Current Price:** $%s\n", ticker.FormatPrice(q.Price, 6))
		if q.HasChange {
			value += fmt.Sprintf("**24h Change:** %+.2f%%\n", q.Change24h)
		}
		if last, ok := cfg.LastPrices[token]; ok {
			value += fmt.Sprintf("**Last Price:** $%s\n", ticker.FormatPrice(last, 6))
		}
		value += "**Source:** " + sourceLabel(q.Source)
		if q.Stale {
			value += " (cached)"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: q.Symbol + " Price", Value: value})

		if token == goldilocks.TokenID && h.contract != nil {
			if st, err := h.contract.FetchState(ctx); err == nil {
				embed.Fields = append(embed.Fields, contractFields(st)...)
			}
		}
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Tracking Info",
		Value: fmt.Sprintf("**Status:** ✅ Active\n**Update Interval:** %s\n**Last Update:** %s",
			ticker.HumanInterval(cfg.UpdateInterval), formatLastUpdate(cfg.LastUpdate)),
		Inline: true,
	})
	return Reply{Embeds: []*discordgo.MessageEmbed{embed}}
}

func contractFields(st *goldilocks.State) []*discordgo.MessageEmbedField {
	return []*discordgo.MessageEmbedField{
		{
			Name: "PRG Bonding Curve",
			Value: fmt.Sprintf("**Market Price:** $%.6f\n**Floor Price:** $%.6f\n**Circulating Supply:** %.2f",
				st.MarketPrice, st.FloorPrice, st.CirculatingSupply),
			Inline: true,
		},
		{
			Name:   "Contract Data",
			Value:  fmt.Sprintf("**FSL:** %.6f\n**PSL:** %.6f\n**Supply:** %.6f", st.FSL, st.PSL, st.Supply),
			Inline: true,
		},
	}
}

func sourceLabel(source string) string {
	switch source {
	case goldilocks.SourceName:
		return "Goldilocks Smart Contract"
	case "":
		return "unknown"
	default:
		return strings.ToUpper(source[:1]) + source[1:]
	}
}

func formatLastUpdate(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func (h *CommandHandler) handleStatusCommand(ctx context.Context, req Request) Reply {
	embed := &discordgo.MessageEmbed{Title: "Bot Status", Color: infoColor}

	cfg, configured := h.registry.Get(req.GuildID)

	checkIDs := []string{"bitcoin"}
	if configured && len(cfg.Tokens) > 0 {
		checkIDs = cfg.Tokens
	}
	quotes, err := h.tracker.Quotes(ctx, checkIDs)
	sourceStatus := "✅ Operational"
	switch {
	case len(quotes) == 0:
		sourceStatus = "❌ Not responding"
	case err != nil || anyStale(quotes):
		sourceStatus = "⚠️ Having issues"
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Price API", Value: sourceStatus, Inline: true})

	if h.contract != nil {
		contractStatus := "❌ Not responding"
		if st, err := h.contract.FetchState(ctx); err == nil {
			contractStatus = fmt.Sprintf("✅ Operational\nPRG Price: $%.6f", st.Price)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Berachain/PRG Contract", Value: contractStatus, Inline: true})
	}

	interval := ticker.HumanInterval(guilds.DefaultUpdateInterval) + " (default)"
	trackingStatus := "❌ Not configured"
	tokens := "none"
	if configured {
		interval = ticker.HumanInterval(cfg.UpdateInterval)
		trackingStatus = "❌ Inactive"
		if cfg.Tracking {
			trackingStatus = "✅ Active"
		}
		if len(cfg.Tokens) > 0 {
			tokens = strings.Join(cfg.Tokens, ", ")
		}
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Server Settings",
		Value: fmt.Sprintf("Update Interval: %s\nTracking: %s\nTokens: %s", interval, trackingStatus, tokens),
	})

	total, tracking := h.registry.Stats()
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Global Statistics",
		Value: fmt.Sprintf("Total Servers: %d\nActive Tracking: %d", total, tracking),
	})
	return Reply{Embeds: []*discordgo.MessageEmbed{embed}}
}

func anyStale(quotes map[string]prices.Quote) bool {
	for _, q := range quotes {
		if q.Stale {
			return true
		}
	}
	return false
}

func (h *CommandHandler) handleSetIntervalCommand(req Request) Reply {
	seconds, err := ticker.ParseInterval(req.Options["interval"])
	if err != nil || seconds < guilds.MinUpdateInterval || seconds > guilds.MaxUpdateInterval {
		return Reply{Content: fmt.Sprintf("❌ Update interval must be between 60 seconds and 24 hours (%d seconds).", guilds.MaxUpdateInterval)}
	}

	old := h.registry.GetOrCreate(req.GuildID).UpdateInterval
	if _, err := h.registry.Update(req.GuildID, func(g *guilds.GuildConfig) error {
		return g.SetInterval(seconds)
	}); err != nil {
		logging.LogError("Failed to set interval", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error saving the server configuration. Check logs for details."}
	}

	return Reply{Content: fmt.Sprintf("✅ Update interval changed from %s to %s",
		ticker.HumanInterval(old), ticker.HumanInterval(seconds))}
}

func (h *CommandHandler) handleGetIntervalCommand(req Request) Reply {
	cfg, ok := h.registry.Get(req.GuildID)
	if !ok {
		return Reply{Content: noTokensReply}
	}
	return Reply{Content: "Current update interval: " + ticker.HumanInterval(cfg.UpdateInterval)}
}

func (h *CommandHandler) handleForceUpdateCommand(ctx context.Context, req Request) Reply {
	res, err := h.tracker.ForceUpdate(ctx, req.GuildID)
	switch {
	case errors.Is(err, tracker.ErrNotTracking):
		return Reply{Content: notTrackingReply}
	case err != nil:
		logging.LogError("Error in force_update", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error forcing update. Check logs for details."}
	}

	content := "✅ Forced price update completed!\nNickname: `" + res.Nickname + "`"
	if res.Stale {
		content += "\n⚠️ The price API is unavailable, cached prices were used."
	}
	return Reply{Content: content}
}

func (h *CommandHandler) handleSetupCommand(ctx context.Context, req Request) Reply {
	configChannel := req.Options["config_channel"]
	displayChannel := req.Options["display_channel"]
	if configChannel == "" || displayChannel == "" {
		return Reply{Content: "Usage: /setup {config_channel} {display_channel}"}
	}

	if _, err := h.registry.Update(req.GuildID, func(g *guilds.GuildConfig) error {
		g.SetChannels(configChannel, displayChannel)
		return nil
	}); err != nil {
		logging.LogError("Failed to save channels", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error saving the server configuration. Check logs for details."}
	}

	if err := h.messenger.SendEmbed(ctx, configChannel, SetupEmbed(configChannel, displayChannel)); err != nil {
		logging.LogError("Error sending setup message", zap.String("guild_id", req.GuildID), zap.Error(err))
		return Reply{Content: "❌ Error: Make sure the bot has permission to send messages in the configured channels."}
	}
	return Reply{Content: fmt.Sprintf("✅ Setup complete! Check <#%s> for configuration instructions.", configChannel)}
}

// SetupEmbed is the configuration guide posted to the config channel.
func SetupEmbed(configChannel, displayChannel string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔧 Bot Setup",
		Description: "Configure the bot by using these commands:",
		Color:       infoColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "1️⃣ Choose Tokens", Value: "`/track [token]` - Add a token (e.g. `bitcoin`, `locks`, `prg`)\n`/untrack [token]` - Remove a token"},
			{Name: "2️⃣ Start Tracking", Value: "`/start` - Start updating the bot nickname and role color"},
			{Name: "3️⃣ Set Update Interval", Value: "`/set_interval [interval]` - Set how often prices update\nExample: `/set_interval 5m` for 5 minutes"},
			{Name: "📊 Display Channel", Value: fmt.Sprintf("Alerts and daily summaries will be shown in <#%s>", displayChannel)},
			{Name: "⚙️ Config Channel", Value: fmt.Sprintf("Use commands in <#%s>", configChannel)},
			{Name: "Other Commands", Value: "`/price_status` - Show prices and tracking status\n" +
				"`/stop` - Stop price tracking\n" +
				"`/status` - Check bot status\n" +
				"`/chart [token]` - Recent price chart\n" +
				"`/force_update` - Force immediate update"},
		},
	}
}

func (h *CommandHandler) handleChartCommand(req Request) Reply {
	input := strings.TrimSpace(req.Options["token"])
	if input == "" {
		return Reply{Content: "Usage: /chart {token}\n\nExample: /chart bitcoin"}
	}
	id := h.catalog.Resolve(input)
	symbol := h.catalog.Symbol(id)

	points := last24h(h.tracker.History(), id)
	png, err := charts.PriceChartPNG(symbol, points)
	if err != nil {
		if errors.Is(err, charts.ErrNotEnoughPoints) {
			return Reply{Content: fmt.Sprintf("Not enough price history for %s yet. Try again after a few updates.", symbol)}
		}
		logging.LogError("Failed to render chart", zap.String("token", id), zap.Error(err))
		return Reply{Content: "❌ Error drawing the chart. Check logs for details."}
	}

	name := strings.ToLower(symbol) + "_24h.png"
	return Reply{
		Content: fmt.Sprintf("%s, last %d observations", symbol, len(points)),
		Files:   []*discordgo.File{{Name: name, ContentType: "image/png", Reader: bytes.NewReader(png)}},
	}
}

func (h *CommandHandler) handleSyncCommand(ctx context.Context) Reply {
	if h.syncCommands == nil {
		return Reply{Content: "❌ Failed to sync commands!"}
	}
	n, err := h.syncCommands(ctx)
	if err != nil {
		logging.LogError("Error syncing commands", zap.Error(err))
		return Reply{Content: "❌ Failed to sync commands!"}
	}
	logging.LogInfo("Manually synced commands", zap.Int("commands", n))
	return Reply{Content: fmt.Sprintf("✅ Successfully synced %d commands!\nAll commands should now be available.", n)}
}

// CommandNames lists registered command names, sorted.
func (h *CommandHandler) CommandNames() []string {
	names := make([]string, 0, 12)
	for _, c := range h.Definitions() {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
