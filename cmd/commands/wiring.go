package commands

// Construction shared by the subcommands: config + logging, guild store, price sources

import (
	"context"
	"fmt"

	"ticker-bot/internal/clients_api/coingecko"
	"ticker-bot/internal/clients_api/goldilocks"
	"ticker-bot/internal/features/guilds"
	"ticker-bot/internal/features/prices"
	"ticker-bot/internal/infra/config"
	"ticker-bot/internal/infra/fs"
	"ticker-bot/internal/infra/kv"
	logging "ticker-bot/internal/infra/log"
	"ticker-bot/internal/infra/retry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Init(logging.Options{Dir: cfg.App.LogDir, Debug: cfg.App.Debug}); err != nil {
		return nil, fmt.Errorf("failed to init logging: %w", err)
	}
	return cfg, nil
}

func openGuildStore(cfg *config.Config) (guilds.Store, error) {
	path := cfg.StoragePath()
	switch cfg.Storage.Driver {
	case "buntdb":
		return kv.OpenGuildStore(path)
	default:
		return fs.NewGuildFileStore(path)
	}
}

type priceSources struct {
	catalog   *prices.Catalog
	coingecko *coingecko.Client
	contract  *goldilocks.Client // nil when berachain.rpc_url is empty
	multi     *prices.MultiSource
}

func (p *priceSources) Close() {
	if p.contract != nil {
		p.contract.Close()
	}
}

// newPriceSources builds the REST client and, when configured, the on-chain PRG source.
// A failing RPC dial is logged and PRG is left to the REST source.
func newPriceSources(ctx context.Context, cfg *config.Config) *priceSources {
	catalog := prices.NewCatalog(cfg.Tokens.Symbols, cfg.Tokens.Aliases)

	retryOpts := retry.DefaultOptions
	retryOpts.MaxRetries = cfg.CoinGecko.MaxRetries
	retryOpts.MaxRetryAfter = cfg.CoinGecko.MaxRetryAfter

	cg := coingecko.NewClient(coingecko.Options{
		BaseURL:        cfg.CoinGecko.BaseURL,
		APIKey:         cfg.CoinGecko.APIKey,
		APITier:        cfg.CoinGecko.APITier,
		VsCurrency:     cfg.CoinGecko.VsCurrency,
		RequestsPerMin: cfg.CoinGecko.RequestsPerMin,
		Burst:          cfg.CoinGecko.Burst,
		Timeout:        cfg.CoinGecko.RequestTimeout,
		Retry:          retryOpts,
		Symbol:         catalog.Symbol,
	})

	p := &priceSources{catalog: catalog, coingecko: cg}

	if cfg.Berachain.RPCURL != "" {
		contract, err := goldilocks.Dial(ctx, cfg.Berachain.RPCURL, goldilocks.Addresses{
			Goldiswap:   cfg.Berachain.GoldiswapAddress,
			Goldilocked: cfg.Berachain.GoldilockedAddress,
			Treasury:    cfg.Berachain.TreasuryAddress,
		})
		if err != nil {
			logging.LogError("Failed to connect to Berachain, PRG contract pricing disabled", zap.Error(err))
		} else {
			p.contract = contract
			logging.LogInfo("Goldilocks contract source enabled", zap.String("rpc", cfg.Berachain.RPCURL))
		}
	}

	if p.contract != nil {
		p.multi = prices.NewMultiSource(p.contract, cg)
	} else {
		p.multi = prices.NewMultiSource(cg)
	}
	return p
}
