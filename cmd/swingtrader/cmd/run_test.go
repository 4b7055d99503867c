package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/swingtrader/engine"
	"github.com/rustyeddy/swingtrader/signals"
)

func TestTickHasNoScanFlag(t *testing.T) {
	assert.Nil(t, tickCmd.Flags().Lookup("scan"))
	assert.NotNil(t, runCmd.Flags().Lookup("now"))
}

func TestLogQueueRanksSymbols(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	start := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

	logQueue(zap.New(core), engine.QueueSnapshot{
		State:       signals.Collecting,
		WindowStart: start,
		Candidates:  []signals.Candidate{{Symbol: "MSFT"}, {Symbol: "AAPL"}},
	})

	entries := logs.FilterMessage("queue").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "COLLECTING", fields["state"])
	at, ok := fields["window_start"].(time.Time)
	require.True(t, ok)
	assert.True(t, start.Equal(at))
	assert.Equal(t, []interface{}{"MSFT", "AAPL"}, fields["ranked"])
}
