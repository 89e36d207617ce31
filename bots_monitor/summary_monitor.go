package bots_monitor

// Daily summary: embed with every tracked token plus a chart of the primary token,
// posted to each tracking guild's display channel on a cron schedule

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"ticker-bot/internal/features/charts"
	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/ticker"
	"ticker-bot/internal/features/tracker"
	logging "ticker-bot/internal/infra/log"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const summaryColor = 0x3498DB

type SummaryMonitor struct {
	registry  *guilds.Registry
	tracker   PriceTracker
	messenger Messenger
	mirror    Mirror
	spec      string
}

func NewSummaryMonitor(registry *guilds.Registry, tr PriceTracker, messenger Messenger, mirror Mirror, spec string) *SummaryMonitor {
	if spec == "" {
		spec = "0 10 * * *"
	}
	return &SummaryMonitor{
		registry:  registry,
		tracker:   tr,
		messenger: messenger,
		mirror:    mirror,
		spec:      spec,
	}
}

// Run schedules the summary and blocks until ctx is done.
func (m *SummaryMonitor) Run(ctx context.Context) error {
	schedule, err := cron.ParseStandard(m.spec)
	if err != nil {
		return fmt.Errorf("invalid summary schedule %q: %w", m.spec, err)
	}

	c := cron.New(cron.WithLocation(time.UTC))
	c.Schedule(schedule, cron.FuncJob(func() { m.SendAll(ctx) }))
	c.Start()

	logging.LogInfo("Summary monitor scheduled",
		zap.String("cron", m.spec),
		zap.Time("next", schedule.Next(time.Now().UTC())))

	<-ctx.Done()
	<-c.Stop().Done()
	logging.LogInfo("Summary monitor stopped")
	return nil
}

// SendAll posts one summary per tracking guild that has a display channel.
func (m *SummaryMonitor) SendAll(ctx context.Context) {
	tracking := m.registry.Tracking()
	targets := lo.Filter(tracking, func(g *guilds.GuildConfig, _ int) bool {
		return g.DisplayChannelID != ""
	})
	ids := lo.Uniq(lo.FlatMap(tracking, func(g *guilds.GuildConfig, _ int) []string { return g.Tokens }))
	if len(ids) == 0 {
		logging.LogDebug("Summary skipped, nothing tracked")
		return
	}

	quotes, err := m.tracker.Quotes(ctx, ids)
	if err != nil {
		logging.LogWarn("Summary price fetch incomplete", zap.Error(err))
	}

	sent := 0
	for _, g := range targets {
		embed := BuildSummaryEmbed(g.Tokens, quotes, time.Now())
		var files []*discordgo.File
		if png, name := m.chartFor(g.Tokens, quotes); png != nil {
			embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + name}
			files = append(files, &discordgo.File{Name: name, ContentType: "image/png", Reader: bytes.NewReader(png)})
		}
		if err := m.messenger.SendEmbed(ctx, g.DisplayChannelID, embed, files...); err != nil {
			logging.LogError("Failed to send summary", zap.String("guild_id", g.GuildID), zap.Error(err))
			continue
		}
		sent++
	}

	if m.mirror != nil {
		text := SummaryText(ids, quotes)
		var err error
		if png, name := m.chartFor(ids, quotes); png != nil {
			err = m.mirror.SendPhoto(text, name, png)
		} else {
			err = m.mirror.Send(text)
		}
		if err != nil {
			logging.LogError("Failed to mirror summary", zap.Error(err))
		}
	}

	logging.LogInfo("Daily summary sent", zap.Int("guilds", sent), zap.Int("tokens", len(ids)))
}

func (m *SummaryMonitor) chartFor(tokens []string, quotes map[string]prices.Quote) ([]byte, string) {
	if len(tokens) == 0 {
		return nil, ""
	}
	primary := tokens[0]
	symbol := strings.ToUpper(primary)
	if q, ok := quotes[primary]; ok && q.Symbol != "" {
		symbol = q.Symbol
	}
	png, err := charts.PriceChartPNG(symbol, last24h(m.tracker.History(), primary))
	if err != nil {
		logging.LogDebug("No chart for summary", zap.String("token", primary), zap.Error(err))
		return nil, ""
	}
	return png, strings.ToLower(symbol) + "_24h.png"
}

func BuildSummaryEmbed(tokens []string, quotes map[string]prices.Quote, at time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "Daily Price Summary",
		Color:     summaryColor,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	for _, token := range tokens {
		q, ok := quotes[token]
		if !ok {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  strings.ToUpper(token),
				Value: "❌ Price unavailable",
			})
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   q.Symbol,
			Value:  quoteLine(q),
			Inline: true,
		})
	}
	return embed
}

func SummaryText(tokens []string, quotes map[string]prices.Quote) string {
	lines := []string{"Daily Price Summary"}
	for _, token := range tokens {
		if q, ok := quotes[token]; ok {
			lines = append(lines, q.Symbol+": "+quoteLine(q))
		}
	}
	return strings.Join(lines, "\n")
}

func quoteLine(q prices.Quote) string {
	s := "$" + ticker.FormatPrice(q.Price, 4)
	if q.HasChange {
		s += fmt.Sprintf(" (%+.2f%% 24h)", q.Change24h)
	}
	if q.Stale {
		s += " (stale)"
	}
	return s
}

// last24h is the chart window for /chart and the summary.
func last24h(h *tracker.History, id string) []tracker.Point {
	return h.Since(id, time.Now().Add(-24*time.Hour))
}
