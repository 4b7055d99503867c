package market

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBars(t *testing.T) {
	t.Parallel()

	in := `time,open,high,low,close,volume
2024-03-02,101,103,100,102,2000

2024-03-01,100,102,99,101,1500
2024-03-04T14:30:00Z,102,104,101,103
`
	bars, err := ReadBars(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 1500.0, bars[0].Volume)
	assert.Equal(t, 102.0, bars[1].Close)
	assert.Equal(t, 103.0, bars[2].Close)
	assert.Zero(t, bars[2].Volume)
}

func TestReadBarsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "short row", in: "2024-03-01,1,2,3\n"},
		{name: "bad time", in: "yesterday,1,2,3,4\n"},
		{name: "bad price", in: "2024-03-01,1,2,x,4\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadBars(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.csv"),
		[]byte("time,open,high,low,close\n2024-03-01,10,11,9,10.5\n"), 0o644))

	m := NewMemory()
	require.NoError(t, LoadDir(m, dir, []string{"aapl"}))

	px, err := m.LatestPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.5, px)

	assert.Error(t, LoadDir(m, dir, []string{"MSFT"}))
}
