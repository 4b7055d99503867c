// Package detector scores trend-following entry setups from daily bars.
package detector

import (
	"fmt"
	"math"

	"github.com/rustyeddy/swingtrader/market"
	"github.com/rustyeddy/swingtrader/market/indicators"
	"github.com/rustyeddy/swingtrader/signals"
)

const (
	PatternCross    = "EMA_CROSS"
	PatternPullback = "EMA_PULLBACK"
)

type Config struct {
	FastPeriod int     `yaml:"fast_period" json:"fast_period"`
	SlowPeriod int     `yaml:"slow_period" json:"slow_period"`
	ADXPeriod  int     `yaml:"adx_period" json:"adx_period"`
	MinADX     float64 `yaml:"min_adx" json:"min_adx"`

	// Largest distance of the close from the fast EMA, as a fraction, that
	// still counts as a pullback.
	MaxPullbackPct float64 `yaml:"max_pullback_pct" json:"max_pullback_pct"`
}

func DefaultConfig() Config {
	return Config{
		FastPeriod:     10,
		SlowPeriod:     30,
		ADXPeriod:      14,
		MinADX:         20,
		MaxPullbackPct: 0.02,
	}
}

func (c Config) Validate() error {
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 || c.ADXPeriod <= 0 {
		return fmt.Errorf("detector periods must be > 0")
	}
	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("detector.fast_period must be < detector.slow_period")
	}
	if c.MinADX < 0 || c.MaxPullbackPct <= 0 {
		return fmt.Errorf("detector.min_adx must be >= 0 and detector.max_pullback_pct > 0")
	}
	return nil
}

// Pullback finds long setups in an uptrend: either a fresh fast-over-slow
// EMA cross or a close that has pulled back to the fast EMA while it stays
// above the slow one. ADX gates both on trend strength.
type Pullback struct {
	cfg Config
}

func NewPullback(cfg Config) (*Pullback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pullback{cfg: cfg}, nil
}

// MinBars is the history needed before any verdict is given.
func (d *Pullback) MinBars() int {
	n := d.cfg.SlowPeriod
	if w := 2*d.cfg.ADXPeriod + 1; w > n {
		n = w
	}
	return n + 1
}

func (d *Pullback) EvaluateEntry(symbol string, bars []market.Bar) (signals.Signal, bool) {
	if len(bars) < d.MinBars() {
		return signals.Signal{}, false
	}

	fast := indicators.NewEMA(d.cfg.FastPeriod)
	slow := indicators.NewEMA(d.cfg.SlowPeriod)
	adx := indicators.NewADX(d.cfg.ADXPeriod)
	for _, b := range bars {
		fast.Update(b)
		slow.Update(b)
		adx.Update(b)
	}
	if !fast.Ready() || !slow.Ready() || !adx.Ready() {
		return signals.Signal{}, false
	}

	last := bars[len(bars)-1]
	fv, sv := fast.Float64(), slow.Float64()
	if fv <= sv || last.Close <= sv {
		return signals.Signal{}, false
	}

	pattern := ""
	switch {
	case fast.Prev() <= slow.Prev():
		pattern = PatternCross
	case math.Abs(last.Close-fv)/fv <= d.cfg.MaxPullbackPct:
		pattern = PatternPullback
	default:
		return signals.Signal{}, false
	}

	sig := signals.Signal{
		Pattern: pattern,
		Price:   last.Close,
		Score:   score(fv, sv, adx.Float64(), adx.PlusDI(), adx.MinusDI()),
	}
	sig.Valid = adx.Float64() >= d.cfg.MinADX && adx.PlusDI() > adx.MinusDI()
	return sig, true
}

// score is 0..10: up to 5 for trend strength (ADX/10), up to 3 for EMA
// separation in percent, up to 2 for directional dominance.
func score(fast, slow, adx, plusDI, minusDI float64) float64 {
	s := math.Min(adx/10, 5)
	s += math.Min((fast-slow)/slow*100, 3)
	if den := plusDI + minusDI; den > 0 {
		s += 2 * math.Max(plusDI-minusDI, 0) / den
	}
	return math.Round(s*100) / 100
}

var _ signals.Detector = (*Pullback)(nil)
