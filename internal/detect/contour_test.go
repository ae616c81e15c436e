package detect

import (
	"testing"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mask(rows, cols int, bits ...int) Mask {
	m := Mask{Rows: rows, Cols: cols, Set: make([]bool, rows*cols)}
	for i, b := range bits {
		m.Set[i] = b != 0
	}
	return m
}

// signedArea uses x = column, y = row; positive means clockwise on screen.
func signedArea(loop []Point) float64 {
	var sum float64
	for i, p := range loop {
		q := loop[(i+1)%len(loop)]
		sum += p.Col*q.Row - q.Col*p.Row
	}
	return sum / 2
}

func TestExtractContours_SinglePixel(t *testing.T) {
	loops := ExtractContours(mask(1, 1, 1))
	require.Len(t, loops, 1)
	assert.Equal(t, []Point{
		{Row: 0, Col: -0.5},
		{Row: -0.5, Col: 0},
		{Row: 0, Col: 0.5},
		{Row: 0.5, Col: 0},
	}, loops[0])
	assert.Greater(t, signedArea(loops[0]), 0.0)
}

func TestExtractContours_Block(t *testing.T) {
	loops := ExtractContours(mask(2, 2, 1, 1, 1, 1))
	require.Len(t, loops, 1)
	assert.Len(t, loops[0], 8)
	assert.Greater(t, signedArea(loops[0]), 0.0)
}

func TestExtractContours_Empty(t *testing.T) {
	assert.Empty(t, ExtractContours(mask(2, 2)))
	assert.Nil(t, LongestContour(nil))
}

func TestExtractContours_DiagonalContactIsSeparate(t *testing.T) {
	loops := ExtractContours(mask(2, 2, 1, 0, 0, 1))
	require.Len(t, loops, 2)
	assert.Len(t, loops[0], 4)
	assert.Len(t, loops[1], 4)
}

func TestExtractContours_HoleRunsOpposite(t *testing.T) {
	loops := ExtractContours(mask(3, 3,
		1, 1, 1,
		1, 0, 1,
		1, 1, 1,
	))
	require.Len(t, loops, 2)
	assert.Len(t, loops[0], 12)
	assert.Len(t, loops[1], 4)
	assert.Greater(t, signedArea(loops[0]), 0.0)
	assert.Less(t, signedArea(loops[1]), 0.0)
}

func TestLongestContour(t *testing.T) {
	loops := ExtractContours(mask(1, 5, 1, 0, 1, 1, 0))
	require.Len(t, loops, 2)
	assert.Len(t, LongestContour(loops), 6)
}

func TestDownsample(t *testing.T) {
	pts := make([]Point, 10)
	for i := range pts {
		pts[i] = Point{Row: float64(i)}
	}

	got := Downsample(pts, 3)
	assert.Equal(t, []Point{{Row: 0}, {Row: 3}, {Row: 6}, {Row: 9}}, got)
	assert.Len(t, Downsample(pts, 1), 10)
	assert.Len(t, Downsample(pts, 0), 10)
	assert.Len(t, Downsample(pts[:4], 5), 1)
	assert.Empty(t, Downsample(nil, 8))
}

func TestBoundary_MapsToCoordinates(t *testing.T) {
	g := testGrid(t, []float64{40, 39, 38}, []float64{260, 261, 262})
	m := mask(3, 3,
		0, 0, 0,
		0, 1, 0,
		0, 0, 0,
	)

	c := Boundary(g, m, 1)
	assert.Equal(t, []domain.LatLon{
		{Lat: 39, Lon: 260.5},
		{Lat: 39.5, Lon: 261},
		{Lat: 39, Lon: 261.5},
		{Lat: 38.5, Lon: 261},
	}, c.Points())
}

func TestBoundary_EmptyMask(t *testing.T) {
	g := testGrid(t, []float64{40, 39}, []float64{260, 261})
	assert.Zero(t, Boundary(g, mask(2, 2), 8).Len())
}
