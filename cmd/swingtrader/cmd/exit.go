package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:   "exit <symbol>",
	Short: "Sell every open lot of a symbol, oldest first",
	Long: `Close all open positions in a symbol through the configured broker.
Lots are sold in entry order; the first failure stops the run and the
remaining lots stay open.

Example:
  swingtrader exit AAPL`,
	Args: cobra.ExactArgs(1),
	RunE: runExit,
}

func init() {
	rootCmd.AddCommand(exitCmd)
}

func runExit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	closed, err := s.engine.ExitSymbol(ctx, args[0], time.Now())
	for _, p := range closed {
		fmt.Printf("closed %s %s qty=%d price=%.2f pl=%.2f%%\n",
			p.ID, p.Symbol, p.RemainingQuantity, p.ExitPrice, p.RealizedPLPct*100)
	}
	if err != nil {
		return fmt.Errorf("exit %s: %w", args[0], err)
	}
	if len(closed) == 0 {
		fmt.Printf("no open positions in %s\n", args[0])
	}
	return nil
}
