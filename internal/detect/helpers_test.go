package detect

import (
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testGrid builds a grid with 1D axes: lat per row, lon per column.
func testGrid(t *testing.T, lat, lon []float64) domain.Grid {
	t.Helper()
	g, err := domain.NewGrid(len(lat), len(lon), lat, lon)
	require.NoError(t, err)
	return g
}

func testRaster(t *testing.T, g domain.Grid, values ...float64) domain.Raster {
	t.Helper()
	r, err := domain.NewRaster(g, values)
	require.NoError(t, err)
	return r
}

// box is a closed axis-aligned candidate ring.
func box(id int, lon0, lon1, lat0, lat1 float64) domain.CandidateRegion {
	return domain.CandidateRegion{
		ID: id,
		Ring: orb.Ring{
			{lon0, lat0}, {lon1, lat0}, {lon1, lat1}, {lon0, lat1}, {lon0, lat0},
		},
	}
}

func ownership(rows, cols int, ids ...int) *domain.OwnershipGrid {
	o := domain.NewOwnershipGrid(rows, cols)
	copy(o.IDs, ids)
	return o
}
