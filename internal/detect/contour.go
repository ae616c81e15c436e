package detect

import "github.com/couchcryptid/storm-cell-tracker/internal/domain"

// Point is a fractional (row, col) position in raster index space.
type Point struct {
	Row float64
	Col float64
}

// Mask is a row-major binary raster.
type Mask struct {
	Rows int
	Cols int
	Set  []bool
}

func (m Mask) at(r, c int) bool {
	if r < 0 || r >= m.Rows || c < 0 || c >= m.Cols {
		return false
	}
	return m.Set[r*m.Cols+c]
}

// halfKey addresses a contour vertex in doubled coordinates so that edge
// midpoints land on integers.
type halfKey struct{ r, c int }

func (k halfKey) point() Point {
	return Point{Row: float64(k.r) / 2, Col: float64(k.c) / 2}
}

// ExtractContours traces the 0.5 iso-line of a binary mask with marching squares.
// The mask is treated as surrounded by background, so every contour is a closed
// loop. Exterior loops run clockwise in index space (row down, column right) and
// hole loops counter-clockwise. Diagonal-only contacts are not connected.
// Loops are returned in scan order of their first segment.
func ExtractContours(m Mask) [][]Point {
	next := make(map[halfKey]halfKey)
	var order []halfKey

	link := func(from, to halfKey) {
		if _, dup := next[from]; !dup {
			order = append(order, from)
		}
		next[from] = to
	}

	// Cells span corners (r, c)..(r+1, c+1) over a one-gate background border.
	for r := -1; r < m.Rows; r++ {
		for c := -1; c < m.Cols; c++ {
			tl, tr := m.at(r, c), m.at(r, c+1)
			bl, br := m.at(r+1, c), m.at(r+1, c+1)

			top := halfKey{2 * r, 2*c + 1}
			right := halfKey{2*r + 1, 2*c + 2}
			bottom := halfKey{2*r + 2, 2*c + 1}
			left := halfKey{2*r + 1, 2 * c}

			cell := 0
			if tl {
				cell |= 1
			}
			if tr {
				cell |= 2
			}
			if br {
				cell |= 4
			}
			if bl {
				cell |= 8
			}

			// Segments keep foreground on the right-hand side of travel.
			switch cell {
			case 1:
				link(top, left)
			case 2:
				link(right, top)
			case 3:
				link(right, left)
			case 4:
				link(bottom, right)
			case 5:
				link(top, left)
				link(bottom, right)
			case 6:
				link(bottom, top)
			case 7:
				link(bottom, left)
			case 8:
				link(left, bottom)
			case 9:
				link(top, bottom)
			case 10:
				link(right, top)
				link(left, bottom)
			case 11:
				link(right, bottom)
			case 12:
				link(left, right)
			case 13:
				link(top, right)
			case 14:
				link(left, top)
			}
		}
	}

	visited := make(map[halfKey]bool, len(next))
	var loops [][]Point
	for _, start := range order {
		if visited[start] {
			continue
		}
		var loop []Point
		for k := start; !visited[k]; {
			visited[k] = true
			loop = append(loop, k.point())
			nk, ok := next[k]
			if !ok {
				break
			}
			k = nk
		}
		loops = append(loops, loop)
	}
	return loops
}

// LongestContour returns the loop with the most vertices, or nil.
// Ties go to the loop found first.
func LongestContour(loops [][]Point) []Point {
	var best []Point
	for _, l := range loops {
		if len(l) > len(best) {
			best = l
		}
	}
	return best
}

// Downsample keeps every step-th vertex starting with the first.
func Downsample(points []Point, step int) []Point {
	if step <= 1 || len(points) == 0 {
		return points
	}
	out := make([]Point, 0, (len(points)+step-1)/step)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}
	return out
}

// regionMask builds the mask of gates owned by id, optionally narrowed by keep.
func regionMask(owned *domain.OwnershipGrid, id int, keep func(i int) bool) (Mask, bool) {
	m := Mask{Rows: owned.Rows, Cols: owned.Cols, Set: make([]bool, len(owned.IDs))}
	found := false
	for i, v := range owned.IDs {
		if v == id && (keep == nil || keep(i)) {
			m.Set[i] = true
			found = true
		}
	}
	return m, found
}

// Boundary traces the canonical contour of the gates selected by mask, keeps every
// step-th vertex, and maps index positions to (lat, lon). An empty mask yields an
// empty contour.
func Boundary(grid domain.Grid, m Mask, step int) domain.Contour {
	loop := Downsample(LongestContour(ExtractContours(m)), step)
	if len(loop) == 0 {
		return domain.Contour{}
	}
	pts := make([]domain.LatLon, len(loop))
	for i, p := range loop {
		lat, lon := grid.Interpolate(p.Row, p.Col)
		pts[i] = domain.LatLon{Lat: lat, Lon: lon}
	}
	return domain.NewContour(pts)
}
