package domain

import (
	"fmt"
	"math"
	"slices"
)

// NormalizeLon maps a longitude into [0, 360). Non-finite values pass through.
func NormalizeLon(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return lon
	}
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	// math.Mod can round -1e-15 up to exactly 360 after the shift.
	if lon >= 360 {
		lon -= 360
	}
	return lon
}

// Grid maps raster indices to coordinates. Lat and Lon are either 1D axes
// (len(Lat) == Rows, len(Lon) == Cols) or full 2D row-major arrays
// (len == Rows*Cols). Longitudes are kept in [0, 360).
type Grid struct {
	Rows int
	Cols int
	Lat  []float64
	Lon  []float64
}

// NewGrid validates the coordinate arrays and normalizes longitudes.
func NewGrid(rows, cols int, lat, lon []float64) (Grid, error) {
	if rows <= 0 || cols <= 0 {
		return Grid{}, fmt.Errorf("%w: grid shape %dx%d", ErrInputMissing, rows, cols)
	}
	oneD := len(lat) == rows && len(lon) == cols
	twoD := len(lat) == rows*cols && len(lon) == rows*cols
	if !oneD && !twoD {
		return Grid{}, fmt.Errorf("%w: coordinate lengths lat=%d lon=%d do not fit %dx%d",
			ErrInputMissing, len(lat), len(lon), rows, cols)
	}

	lons := make([]float64, len(lon))
	for i, v := range lon {
		lons[i] = NormalizeLon(v)
	}
	lats := make([]float64, len(lat))
	copy(lats, lat)

	return Grid{Rows: rows, Cols: cols, Lat: lats, Lon: lons}, nil
}

// Size is the number of gates in the grid.
func (g Grid) Size() int { return g.Rows * g.Cols }

// Is2D reports whether the coordinates are stored per gate.
func (g Grid) Is2D() bool {
	return len(g.Lat) != g.Rows || len(g.Lon) != g.Cols
}

// At returns the (lat, lon) of gate (row, col).
func (g Grid) At(row, col int) (lat, lon float64) {
	if g.Is2D() {
		i := row*g.Cols + col
		return g.Lat[i], g.Lon[i]
	}
	return g.Lat[row], g.Lon[col]
}

// Interpolate returns the coordinates at a fractional index position,
// clamped to the grid. Longitudes are interpolated across the 0/360 seam.
func (g Grid) Interpolate(row, col float64) (lat, lon float64) {
	row = clamp(row, 0, float64(g.Rows-1))
	col = clamp(col, 0, float64(g.Cols-1))

	r0, c0 := int(math.Floor(row)), int(math.Floor(col))
	r1, c1 := min(r0+1, g.Rows-1), min(c0+1, g.Cols-1)
	fr, fc := row-float64(r0), col-float64(c0)

	lat00, lon00 := g.At(r0, c0)
	lat01, lon01 := g.At(r0, c1)
	lat10, lon10 := g.At(r1, c0)
	lat11, lon11 := g.At(r1, c1)

	lon01 = UnwrapLon(lon01, lon00)
	lon10 = UnwrapLon(lon10, lon00)
	lon11 = UnwrapLon(lon11, lon00)

	lat = bilinear(lat00, lat01, lat10, lat11, fr, fc)
	lon = NormalizeLon(bilinear(lon00, lon01, lon10, lon11, fr, fc))
	return lat, lon
}

// UnwrapLon shifts lon by a multiple of 360 so it lies within 180 degrees of ref.
func UnwrapLon(lon, ref float64) float64 {
	for lon-ref > 180 {
		lon -= 360
	}
	for ref-lon > 180 {
		lon += 360
	}
	return lon
}

func bilinear(v00, v01, v10, v11, fr, fc float64) float64 {
	top := v00 + (v01-v00)*fc
	bottom := v10 + (v11-v10)*fc
	return top + (bottom-top)*fr
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Raster is a 2D field of scalar values (row-major) aligned to a Grid.
// Missing data is NaN.
type Raster struct {
	Grid
	Values []float64
}

// NewRaster checks that values cover the grid.
func NewRaster(grid Grid, values []float64) (Raster, error) {
	if len(values) != grid.Size() {
		return Raster{}, fmt.Errorf("%w: raster has %d values, grid has %d gates",
			ErrInputMissing, len(values), grid.Size())
	}
	return Raster{Grid: grid, Values: values}, nil
}

// Value returns the sample at (row, col).
func (r Raster) Value(row, col int) float64 {
	return r.Values[row*r.Cols+col]
}

// OwnershipGrid maps every gate to the ID of the region that claimed it, 0 when unowned.
type OwnershipGrid struct {
	Rows int
	Cols int
	IDs  []int
}

// NewOwnershipGrid returns an all-unowned grid.
func NewOwnershipGrid(rows, cols int) *OwnershipGrid {
	return &OwnershipGrid{Rows: rows, Cols: cols, IDs: make([]int, rows*cols)}
}

// At returns the owner of gate (row, col).
func (o *OwnershipGrid) At(row, col int) int {
	return o.IDs[row*o.Cols+col]
}

// Clone returns an independent copy.
func (o *OwnershipGrid) Clone() *OwnershipGrid {
	ids := make([]int, len(o.IDs))
	copy(ids, o.IDs)
	return &OwnershipGrid{Rows: o.Rows, Cols: o.Cols, IDs: ids}
}

// RegionIDs returns the distinct non-zero owners in ascending order.
func (o *OwnershipGrid) RegionIDs() []int {
	seen := make(map[int]struct{})
	for _, id := range o.IDs {
		if id != 0 {
			seen[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of gates owned by id.
func (o *OwnershipGrid) Count(id int) int {
	n := 0
	for _, v := range o.IDs {
		if v == id {
			n++
		}
	}
	return n
}
