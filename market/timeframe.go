package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe names a bar period: "1Day", "4Hour", "15Min".
type Timeframe string

const (
	Day  Timeframe = "1Day"
	Hour Timeframe = "1Hour"
)

type Unit string

const (
	UnitMin  Unit = "Min"
	UnitHour Unit = "Hour"
	UnitDay  Unit = "Day"
)

// Parse splits tf into its multiplier and unit.
func (tf Timeframe) Parse() (int, Unit, error) {
	s := strings.TrimSpace(string(tf))
	for _, u := range []Unit{UnitMin, UnitHour, UnitDay} {
		if !strings.HasSuffix(s, string(u)) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(s, string(u)))
		if err != nil || n <= 0 {
			return 0, "", fmt.Errorf("market: bad timeframe %q", tf)
		}
		return n, u, nil
	}
	return 0, "", fmt.Errorf("market: bad timeframe %q (want <n>Min|<n>Hour|<n>Day)", tf)
}

// Duration is the wall-clock length of one bar.
func (tf Timeframe) Duration() (time.Duration, error) {
	n, u, err := tf.Parse()
	if err != nil {
		return 0, err
	}
	switch u {
	case UnitMin:
		return time.Duration(n) * time.Minute, nil
	case UnitHour:
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}
