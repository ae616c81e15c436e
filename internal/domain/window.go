package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Window is a lat/lon bounding box used to restrict a detection pass.
// Longitudes are in [0, 360); LonMin > LonMax means the window crosses the seam.
// The zero Window applies no restriction.
type Window struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// ParseWindow parses "latmin,latmax,lonmin,lonmax". An empty string yields the zero Window.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Window{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Window{}, fmt.Errorf("window %q: want latmin,latmax,lonmin,lonmax", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Window{}, fmt.Errorf("window %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[1] {
		return Window{}, fmt.Errorf("window %q: latmin greater than latmax", s)
	}
	return Window{
		LatMin: v[0],
		LatMax: v[1],
		LonMin: NormalizeLon(v[2]),
		LonMax: NormalizeLon(v[3]),
	}, nil
}

// IsZero reports whether the window is unset.
func (w Window) IsZero() bool {
	return w == Window{}
}

// Contains reports whether (lat, lon) falls inside the window, edges included.
func (w Window) Contains(lat, lon float64) bool {
	if w.IsZero() {
		return true
	}
	if lat < w.LatMin || lat > w.LatMax {
		return false
	}
	lon = NormalizeLon(lon)
	if w.LonMin <= w.LonMax {
		return lon >= w.LonMin && lon <= w.LonMax
	}
	return lon >= w.LonMin || lon <= w.LonMax
}

// Subset cuts the rows and columns of a 1D-axis raster that fall inside the window.
// Rasters with 2D coordinates are returned unchanged because their rows and columns
// do not map to single latitudes or longitudes.
func (w Window) Subset(r Raster) (Raster, error) {
	if w.IsZero() || r.Is2D() {
		return r, nil
	}

	var rows, cols []int
	for i, lat := range r.Lat {
		if lat >= w.LatMin && lat <= w.LatMax {
			rows = append(rows, i)
		}
	}
	for j, lon := range r.Lon {
		if w.Contains(w.LatMin, lon) {
			cols = append(cols, j)
		}
	}
	if len(rows) == 0 || len(cols) == 0 {
		return Raster{}, fmt.Errorf("%w: window %+v does not intersect the grid", ErrInputMissing, w)
	}

	lats := make([]float64, len(rows))
	for i, row := range rows {
		lats[i] = r.Lat[row]
	}
	lons := make([]float64, len(cols))
	for j, col := range cols {
		lons[j] = r.Lon[col]
	}
	values := make([]float64, 0, len(rows)*len(cols))
	for _, row := range rows {
		for _, col := range cols {
			values = append(values, r.Value(row, col))
		}
	}

	grid, err := NewGrid(len(rows), len(cols), lats, lons)
	if err != nil {
		return Raster{}, err
	}
	return NewRaster(grid, values)
}
