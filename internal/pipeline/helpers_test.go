package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2025, 5, 20, 22, 30, 0, 0, time.UTC)
	t1 = t0.Add(2 * time.Minute)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cellRegions is one candidate region covering gates (0..1, 0..1) of testFrame's grid.
const cellRegions = `{"type": "FeatureCollection", "features": [{
	"type": "Feature",
	"properties": {"ID": 1},
	"geometry": {"type": "Polygon", "coordinates": [[[-100.5, 38.5], [-98.5, 38.5], [-98.5, 40.5], [-100.5, 40.5], [-100.5, 38.5]]]}
}]}`

// testFrame encodes a 4x4 frame whose top-left block holds a storm. extra extends
// the storm into that many gates of the third column.
func testFrame(t *testing.T, ts time.Time, extra int) domain.RawFrame {
	t.Helper()
	grid, err := domain.NewGrid(4, 4, []float64{40, 39, 38, 37}, []float64{260, 261, 262, 263})
	require.NoError(t, err)

	values := []float64{
		52, 55, 20, 20,
		50, 58, 20, 20,
		20, 20, 20, 20,
		20, 20, 20, 20,
	}
	for r := 0; r < extra; r++ {
		values[r*4+2] = 45
	}
	refl, err := domain.NewRaster(grid, values)
	require.NoError(t, err)

	data, err := domain.EncodeFrame(domain.Frame{
		Timestamp:    ts,
		Source:       "MRMS_MergedReflectivityQC_3D_" + ts.Format("20060102-150405") + ".grib2",
		Reflectivity: refl,
	}, []byte(cellRegions))
	require.NoError(t, err)

	return domain.RawFrame{Key: []byte("frame"), Value: data, Topic: "radar-frames"}
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu      sync.Mutex
	cells   []domain.CellRecord
	saves   int
	loadErr error
	saveErr error
}

func (m *memStore) Load(_ context.Context) ([]domain.CellRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.cells, nil
}

func (m *memStore) Save(_ context.Context, cells []domain.CellRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.cells = cells
	return nil
}
