package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process Provider fed with SetBars/SetPrice. It backs
// dry runs from recorded data and tests.
type Memory struct {
	mu     sync.RWMutex
	prices map[string]float64
	bars   map[string][]Bar
}

func NewMemory() *Memory {
	return &Memory{
		prices: make(map[string]float64),
		bars:   make(map[string][]Bar),
	}
}

func (m *Memory) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[key(symbol)] = price
}

// SetBars replaces the bars for symbol. When no explicit price has been set
// the last close doubles as the latest price.
func (m *Memory) SetBars(symbol string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	m.bars[key(symbol)] = cp
}

func (m *Memory) Bars(_ context.Context, symbol string, _ Timeframe, lookback int) ([]Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bars, ok := m.bars[key(symbol)]
	if !ok || len(bars) == 0 {
		return nil, fmt.Errorf("bars %s: %w", symbol, ErrNoData)
	}
	tail := Tail(bars, lookback)
	out := make([]Bar, len(tail))
	copy(out, tail)
	return out, nil
}

func (m *Memory) LatestPrice(_ context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prices[key(symbol)]; ok {
		return p, nil
	}
	if c, ok := LastClose(m.bars[key(symbol)]); ok {
		return c, nil
	}
	return 0, fmt.Errorf("latest price %s: %w", symbol, ErrNoData)
}

func key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

var _ Provider = (*Memory)(nil)
