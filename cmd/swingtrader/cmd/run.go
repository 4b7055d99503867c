package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/engine"
	"github.com/rustyeddy/swingtrader/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine on its cron schedule",
	Long: `Start the engine and drive it from schedule.tick and schedule.scan.

Each tick evaluates every open position for stop, time and target exits,
then executes the signal queue when its collection window has closed.
Each scan runs the detector over the watchlist and queues candidates.

On SIGINT or SIGTERM the in-flight tick is allowed to finish.

Example:
  swingtrader run --config swingtrader.yaml`,
	RunE: runRun,
}

var runNow bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNow, "now", false, "scan and tick once at startup")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	// Jobs run on a context that outlives the signal so a tick in progress
	// can commit.
	runner := scheduler.New(context.Background(), cfg.ScheduleLocation(), logger.Named("scheduler"))
	if _, err := runner.Add("tick", cfg.Schedule.Tick, func(ctx context.Context, now time.Time) {
		s.engine.Tick(ctx, now)
	}); err != nil {
		return err
	}
	if cfg.Schedule.Scan != "" {
		if _, err := runner.Add("scan", cfg.Schedule.Scan, func(ctx context.Context, now time.Time) {
			s.engine.Scan(ctx, now)
			logQueue(logger, s.engine.QueueState())
		}); err != nil {
			return err
		}
	}

	if runNow {
		now := time.Now()
		s.engine.Scan(ctx, now)
		s.engine.Tick(ctx, now)
	}

	runner.Start()
	logger.Info("swingtrader started",
		zap.String("broker", cfg.Broker.Mode),
		zap.String("data", cfg.Data.Source),
		zap.Strings("watchlist", cfg.Watchlist),
		zap.String("tick", cfg.Schedule.Tick),
		zap.String("scan", cfg.Schedule.Scan),
	)
	for job, at := range runner.Next() {
		logger.Info("next activation", zap.String("job", job), zap.Time("at", at))
	}

	<-ctx.Done()
	logger.Info("shutting down; waiting for running jobs")
	runner.Stop()
	return nil
}

func logQueue(logger *zap.Logger, qs engine.QueueSnapshot) {
	symbols := make([]string, 0, len(qs.Candidates))
	for _, c := range qs.Candidates {
		symbols = append(symbols, c.Symbol)
	}
	logger.Info("queue",
		zap.Stringer("state", qs.State),
		zap.Time("window_start", qs.WindowStart),
		zap.Strings("ranked", symbols),
	)
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single evaluation pass and exit",
	Long: `Run one tick outside the scheduler: ratchet stops and take any stop,
time or target exits on open positions.

The signal queue lives in the running process, so a one-shot tick never
enters new positions. Use "swingtrader run" (optionally with --now) to
scan the watchlist and execute the queue.

Example:
  swingtrader tick`,
	Args: cobra.NoArgs,
	RunE: runTick,
}

func init() {
	rootCmd.AddCommand(tickCmd)
}

func runTick(cmd *cobra.Command, args []string) error {
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

	sum := s.engine.Tick(ctx, time.Now())
	fmt.Printf("tick: positions=%d stops=%d partials=%d exits=%d errors=%d\n",
		sum.Positions, sum.StopUpdates, sum.Partials, sum.Exits, sum.Errors)
	return nil
}
