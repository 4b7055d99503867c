package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FormatPositionOrg renders a position and its partial exits as an org-mode
// entry with a properties drawer.
func FormatPositionOrg(p Position, partials []PartialExit) string {
	var b strings.Builder

	fmt.Fprintf(&b, "** %s: %s (%s)\n", p.Status, p.Symbol, shortID(p.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", p.ID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", p.Symbol)
	fmt.Fprintf(&b, ":CLASS: %s\n", p.PositionClass)
	fmt.Fprintf(&b, ":ENTRY_DATE: %s\n", orgTime(p.EntryDate))
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.2f\n", p.EntryPrice)
	fmt.Fprintf(&b, ":QUANTITY: %d/%d\n", p.RemainingQuantity, p.OriginalQuantity)
	fmt.Fprintf(&b, ":STOP: %.2f\n", p.StopLossPrice)
	fmt.Fprintf(&b, ":TIER: %d\n", p.HighestTierReached)
	fmt.Fprintf(&b, ":SCORE: %.2f\n", p.EntryScore)
	fmt.Fprintf(&b, ":PATTERN: %s\n", p.EntryPattern)
	if !p.Open() {
		fmt.Fprintf(&b, ":EXIT_DATE: %s\n", orgTime(p.ExitDate))
		fmt.Fprintf(&b, ":EXIT_PRICE: %.2f\n", p.ExitPrice)
		fmt.Fprintf(&b, ":EXIT_REASON: %s\n", p.ExitReason)
		fmt.Fprintf(&b, ":REALIZED_PCT: %.2f\n", p.RealizedPLPct*100)
	}
	b.WriteString(":END:\n")

	if len(partials) > 0 {
		b.WriteString("\n*** Partial exits\n")
		b.WriteString("| label | date | qty | price | pct |\n")
		b.WriteString("|-------+------+-----+-------+-----|\n")
		for _, pe := range partials {
			fmt.Fprintf(&b, "| %s | %s | %d | %.2f | %.2f |\n",
				pe.TargetLabel, orgTime(pe.ExitDate), pe.Quantity, pe.ExitPrice, pe.RealizedPct*100)
		}
	}
	return b.String()
}

// FormatPositionsOrg renders positions separated by blank lines.
func FormatPositionsOrg(ps []Position) string {
	entries := make([]string, 0, len(ps))
	for _, p := range ps {
		entries = append(entries, FormatPositionOrg(p, nil))
	}
	return strings.Join(entries, "\n\n")
}

// shortID keeps the random tail of a ULID; the leading characters encode
// time and repeat across positions opened close together.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

func orgTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
