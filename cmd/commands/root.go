package commands

// Root command for Cobra CLI
// Registers the subcommands (bot, price, healthcheck) and the config override flags

import (
	"ticker-bot/internal/infra/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ticker-bot",
	Short: "Ticker Bot - Discord bot that shows crypto prices in its nickname",
	Long: `Ticker Bot polls CoinGecko (and the Goldilocks contracts on Berachain for PRG) and reflects
the prices into each server's bot nickname, a trend-colored role and the bot status.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(healthcheckCmd)
}
