// Package signals collects entry candidates over a window, then revalidates,
// ranks and executes the best of them in one pass.
package signals

import (
	"sort"
	"time"

	"github.com/rustyeddy/swingtrader/market"
)

// Candidate is a queued entry opportunity. It lives only for the window it
// was collected in.
type Candidate struct {
	Symbol            string
	Score             float64
	Pattern           string
	Price             float64
	DetectedAt        time.Time
	RevalidationCount int
}

// Signal is a detector verdict for one symbol.
type Signal struct {
	Valid   bool
	Score   float64
	Pattern string
	Price   float64
}

// Detector scores a symbol's bars. ok is false when no setup is present at
// all. It is called the same way at collection and at revalidation.
type Detector interface {
	EvaluateEntry(symbol string, bars []market.Bar) (sig Signal, ok bool)
}

// Rank orders candidates by score descending, then earliest DetectedAt,
// then symbol so the result is deterministic.
func Rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.Before(b.DetectedAt)
		}
		return a.Symbol < b.Symbol
	})
}
