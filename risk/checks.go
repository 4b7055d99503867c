package risk

import "fmt"

type Violation struct {
	Code string
	Msg  string
}

// Decision reports how many new entries are allowed and why not more.
type Decision struct {
	Slots      int
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
}

// Allowed reports whether at least one entry may be opened.
func (d Decision) Allowed() bool { return d.Slots > 0 }

// Evaluate returns the number of entries still permitted: the smaller of
// the daily headroom, the open-position headroom and want.
func Evaluate(l Limits, acct AccountSnapshot, want int) Decision {
	d := Decision{Slots: want}
	if d.Slots < 0 {
		d.Slots = 0
	}

	daily := l.MaxTradesPerDay - acct.TradesToday
	if daily <= 0 {
		daily = 0
		d.add("DAILY_TRADE_LIMIT",
			fmt.Sprintf("trades today %d >= max %d", acct.TradesToday, l.MaxTradesPerDay))
	}
	if daily < d.Slots {
		d.Slots = daily
	}

	open := l.MaxOpenPositions - acct.OpenPositions
	if open <= 0 {
		open = 0
		d.add("TOO_MANY_OPEN_POSITIONS",
			fmt.Sprintf("open positions %d >= max %d", acct.OpenPositions, l.MaxOpenPositions))
	}
	if open < d.Slots {
		d.Slots = open
	}

	return d
}
