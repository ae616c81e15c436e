package detect

import (
	"math"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// MapResult is the outcome of assigning gates to candidate regions.
type MapResult struct {
	Owned *domain.OwnershipGrid
	// Degenerate counts candidate regions that could not cover any gate
	// (fewer than three distinct vertices, zero area, non-finite vertices, or ID <= 0).
	Degenerate int
}

// preparedRing is a candidate ring unwrapped to a continuous longitude range.
type preparedRing struct {
	id     int
	ring   orb.Ring
	bound  orb.Bound
	shifts []float64
}

// edgeTolerance is the distance (degrees) within which a gate counts as lying on a
// polygon edge.
const edgeTolerance = 1e-9

// MapGates assigns every gate to the first candidate region (in supplied order)
// whose polygon strictly contains it. Gates on a polygon edge or vertex are not
// contained. A gate, once assigned, is never overwritten.
func MapGates(grid domain.Grid, regions []domain.CandidateRegion) MapResult {
	owned := domain.NewOwnershipGrid(grid.Rows, grid.Cols)
	res := MapResult{Owned: owned}

	prepared := make([]preparedRing, 0, len(regions))
	for _, r := range regions {
		p, ok := prepareRing(r)
		if !ok {
			res.Degenerate++
			continue
		}
		prepared = append(prepared, p)
	}
	if len(prepared) == 0 {
		return res
	}

	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			lat, lon := grid.At(row, col)
			if math.IsNaN(lat) || math.IsNaN(lon) {
				continue
			}
			for i := range prepared {
				if prepared[i].contains(lon, lat) {
					owned.IDs[row*grid.Cols+col] = prepared[i].id
					break
				}
			}
		}
	}
	return res
}

// prepareRing normalizes a candidate ring into [0, 360) and unwraps it so that
// consecutive vertices never differ by more than 180 degrees. A ring crossing the
// 0/360 seam therefore extends past 360, and gates are also tested at lon+360.
func prepareRing(r domain.CandidateRegion) (preparedRing, bool) {
	if r.ID <= 0 || len(r.Ring) < 3 {
		return preparedRing{}, false
	}

	ring := make(orb.Ring, 0, len(r.Ring)+1)
	prev := math.NaN()
	for _, p := range r.Ring {
		lon, lat := p.Lon(), p.Lat()
		if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
			return preparedRing{}, false
		}
		lon = domain.NormalizeLon(lon)
		if !math.IsNaN(prev) {
			lon = domain.UnwrapLon(lon, prev)
		}
		prev = lon
		ring = append(ring, orb.Point{lon, lat})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}

	if distinctVertices(ring) < 3 || planar.Area(ring) == 0 {
		return preparedRing{}, false
	}

	bound := ring.Bound()
	shifts := []float64{0}
	if bound.Max.Lon() >= 360 {
		shifts = append(shifts, 360)
	}
	if bound.Min.Lon() < 0 {
		shifts = append(shifts, -360)
	}

	return preparedRing{id: r.ID, ring: ring, bound: bound, shifts: shifts}, true
}

func (p preparedRing) contains(lon, lat float64) bool {
	for _, s := range p.shifts {
		pt := orb.Point{lon + s, lat}
		if !p.bound.Contains(pt) {
			continue
		}
		if planar.RingContains(p.ring, pt) && !onEdge(p.ring, pt) {
			return true
		}
	}
	return false
}

func onEdge(ring orb.Ring, pt orb.Point) bool {
	for i := 0; i+1 < len(ring); i++ {
		if planar.DistanceFromSegment(ring[i], ring[i+1], pt) <= edgeTolerance {
			return true
		}
	}
	return false
}

func distinctVertices(ring orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(ring))
	for _, p := range ring {
		seen[p] = struct{}{}
	}
	return len(seen)
}
