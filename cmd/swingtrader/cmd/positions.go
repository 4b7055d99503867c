package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/ledger"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Query the position ledger",
	Long: `Query positions and partial exits from the SQLite ledger.

Subcommands:
  open    - List open positions, oldest first
  show    - Show one position with its partial exits
  closed  - List positions closed on a day

Examples:
  swingtrader positions open
  swingtrader positions show 01HQZX3K9N2V7Y8B4C5D6E7F8G
  swingtrader positions closed 2024-03-15`,
}

var positionsOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runPositionsOpen,
}

var positionsShowCmd = &cobra.Command{
	Use:   "show <position-id>",
	Short: "Show a position and its partial exits",
	Args:  cobra.ExactArgs(1),
	RunE:  runPositionsShow,
}

var positionsClosedCmd = &cobra.Command{
	Use:   "closed [YYYY-MM-DD]",
	Short: "List positions closed on a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPositionsClosed,
}

var positionsOrg bool

func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.AddCommand(positionsOpenCmd)
	positionsCmd.AddCommand(positionsShowCmd)
	positionsCmd.AddCommand(positionsClosedCmd)

	positionsCmd.PersistentFlags().BoolVar(&positionsOrg, "org", false, "print org-mode entries instead of a table")
}

func openLedgerFromFlags(cmd *cobra.Command) (*ledger.SQLite, *time.Location, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := openLedger(cfg, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return store, cfg.StoreLocation(), nil
}

func runPositionsOpen(cmd *cobra.Command, args []string) error {
	store, _, err := openLedgerFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ps, err := store.GetOpen(cmd.Context())
	if err != nil {
		return fmt.Errorf("list open: %w", err)
	}
	printPositions(ps)
	return nil
}

func runPositionsShow(cmd *cobra.Command, args []string) error {
	store, _, err := openLedgerFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}
	partials, err := store.PartialExits(cmd.Context(), p.ID)
	if err != nil {
		return fmt.Errorf("partial exits: %w", err)
	}
	fmt.Println(ledger.FormatPositionOrg(p, partials))
	return nil
}

func runPositionsClosed(cmd *cobra.Command, args []string) error {
	store, loc, err := openLedgerFromFlags(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	day := time.Now().In(loc)
	if len(args) == 1 {
		if day, err = time.ParseInLocation("2006-01-02", args[0], loc); err != nil {
			return fmt.Errorf("parse day: %w", err)
		}
	}
	start, end := ledger.DayBounds(day, loc)
	ps, err := store.ListClosedBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("list closed: %w", err)
	}
	printPositions(ps)
	return nil
}

func printPositions(ps []ledger.Position) {
	if len(ps) == 0 {
		fmt.Println("no positions")
		return
	}
	if positionsOrg {
		fmt.Println(ledger.FormatPositionsOrg(ps))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tCLASS\tENTRY\tPRICE\tQTY\tSTOP\tTIER\tSTATUS\tEXIT\tREASON\tPL%")
	for _, p := range ps {
		exit := ""
		if !p.Open() {
			exit = fmt.Sprintf("%.2f", p.ExitPrice)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d/%d\t%.2f\t%d\t%s\t%s\t%s\t%.2f\n",
			p.ID, p.Symbol, p.PositionClass, p.EntryDate.Format("2006-01-02"),
			p.EntryPrice, p.RemainingQuantity, p.OriginalQuantity, p.StopLossPrice,
			p.HighestTierReached, p.Status, exit, p.ExitReason, p.RealizedPLPct*100)
	}
	w.Flush()
}
