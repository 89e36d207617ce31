package commands

// One-shot price fetch: prints quotes and the nickname the bot would show

import (
	"context"
	"fmt"
	"time"

	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/features/ticker"
	logging "ticker-bot/internal/infra/log"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var priceCmd = &cobra.Command{
	Use:     "price <token> [token...]",
	Short:   "Fetch prices once and preview the nickname",
	Example: "  ticker-bot price btc locks\n  ticker-bot price prg --berachain.rpc_url=https://rpc.berachain.com/",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPrice,
}

func runPrice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	sources := newPriceSources(ctx, cfg)
	defer sources.Close()

	ids := lo.Uniq(lo.Map(args, func(a string, _ int) string { return sources.catalog.Resolve(a) }))
	quotes, err := sources.multi.FetchQuotes(ctx, ids)
	if err != nil {
		logging.LogWarn("Price fetch incomplete", zap.Strings("ids", ids), zap.Error(err))
	}
	if len(quotes) == 0 {
		if err == nil {
			err = &prices.NotFoundError{IDs: ids}
		}
		return fmt.Errorf("no prices fetched: %w", err)
	}

	out := cmd.OutOrStdout()
	parts := make([]ticker.Part, 0, len(ids))
	for _, id := range ids {
		q, ok := quotes[id]
		if !ok {
			fmt.Fprintf(out, "%-10s not found\n", sources.catalog.Symbol(id))
			continue
		}
		fmt.Fprintln(out, formatQuoteLine(q))
		parts = append(parts, ticker.Part{Symbol: q.Symbol, Price: q.Price, Trend: ticker.Flat})
	}

	nick := ticker.FitNickname(parts, ticker.NicknameLimit)
	fmt.Fprintf(out, "\nnickname: %q (%d chars)\n", nick, len([]rune(nick)))
	if first, ok := quotes[ids[0]]; ok {
		fmt.Fprintf(out, "status:   Watching %s\n", ticker.FormatStatus(first.Symbol, first.Change24h, first.HasChange))
	}
	return nil
}

func formatQuoteLine(q prices.Quote) string {
	line := fmt.Sprintf("%-10s $%-16s", q.Symbol, ticker.FormatPrice(q.Price, 6))
	if q.HasChange {
		line += fmt.Sprintf(" %+.2f%% 24h", q.Change24h)
	}
	return line + "  [" + q.Source + "]"
}
