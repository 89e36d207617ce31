package commands

// Container health check: config, CoinGecko reachability, Berachain RPC (when configured)
// Exits non-zero when any check fails

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "ticker-bot/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration and price source connectivity",
	RunE:  runHealthcheck,
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	var failed []error

	check := func(name string, err error) {
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", name, err)
			logging.LogError("Health check failed", zap.String("check", name), zap.Error(err))
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
			return
		}
		fmt.Fprintf(out, "✓ %s\n", name)
	}

	check("discord token", cfg.ValidateForBot())

	sources := newPriceSources(ctx, cfg)
	defer sources.Close()

	check("coingecko", sources.coingecko.Ping(ctx))

	if cfg.Berachain.RPCURL != "" {
		if sources.contract == nil {
			check("berachain", errors.New("rpc dial failed"))
		} else {
			block, err := sources.contract.BlockNumber(ctx)
			if err == nil {
				fmt.Fprintf(out, "  latest block %d\n", block)
			}
			check("berachain", err)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("health check failed: %w", errors.Join(failed...))
	}
	logging.LogSuccess("Health check passed")
	return nil
}
