package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/config"
	"github.com/rustyeddy/swingtrader/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "swingtrader",
	Short: "Swing-trade position and risk engine",
	Long: `Swingtrader manages long equity swing trades end to end.

It provides:
  - A watchlist scanner that queues entry candidates
  - A collect, revalidate, rank and execute signal queue
  - Trailing stops that ratchet through profit tiers
  - Partial profit targets, time exits and FIFO symbol exits
  - A SQLite position ledger
  - Paper trading or Alpaca order routing`,
	SilenceUsage: true,
}

var (
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "swingtrader.yaml", "config file (defaults are used when the file does not exist)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API credentials")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log.format (json or console)")
}

// loadConfig reads --config. A missing file is only an error when the
// flag was set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromFile(cfgFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
			cfg = config.Default()
		} else {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
