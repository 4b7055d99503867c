package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ReadBars reads daily or intraday bars from CSV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339 or a 2006-01-02 date. A single header row is
// allowed and empty rows are skipped. Bars are returned oldest first.
func ReadBars(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []Bar
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

func parseBarRow(row []string) (Bar, error) {
	if len(row) < 5 {
		return Bar{}, fmt.Errorf("want at least 5 fields, got %d", len(row))
	}
	ts, err := parseBarTime(strings.TrimSpace(row[0]))
	if err != nil {
		return Bar{}, err
	}

	var v [5]float64
	n := 4
	if len(row) > 5 {
		n = 5
	}
	for i := 0; i < n; i++ {
		if v[i], err = strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64); err != nil {
			return Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return Bar{Time: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

func parseBarTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// LoadDir fills m with <dir>/<SYMBOL>.csv for each symbol.
func LoadDir(m *Memory, dir string, symbols []string) error {
	for _, sym := range symbols {
		path := filepath.Join(dir, key(sym)+".csv")
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open bars for %s: %w", sym, err)
		}
		bars, err := ReadBars(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		m.SetBars(sym, bars)
	}
	return nil
}
