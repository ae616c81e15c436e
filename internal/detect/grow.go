package detect

import (
	"math"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
)

// GrowthResult summarizes a region growth run.
type GrowthResult struct {
	// Iterations counts growth passes, including the final pass that claimed nothing.
	Iterations int
	// Claimed is the number of gates claimed by growth (mapper claims excluded).
	Claimed int
	// Converged is false when the iteration cap stopped growth early.
	Converged bool
}

// 4-connected neighborhood: up, left, right, down.
var neighbors4 = [4][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}

// Grow expands every owned region in place into 4-connected, unowned gates whose
// value is >= threshold. NaN never qualifies.
//
// Growth is simultaneous: each pass reads only the grid as it stood before the
// pass, collects the frontier of every region, and applies all claims at the end.
// A gate adjacent to several regions in the same pass goes to the highest region ID.
// Claimed gates are never reassigned. Growth stops after a pass claims nothing or
// after maxIter passes, whichever comes first.
func Grow(owned *domain.OwnershipGrid, raster domain.Raster, threshold float64, maxIter int) GrowthResult {
	rows, cols := owned.Rows, owned.Cols
	qualifies := func(i int) bool {
		v := raster.Values[i]
		return !math.IsNaN(v) && v >= threshold
	}

	// The first frontier is every owned gate; afterwards only gates claimed in the
	// previous pass can border a claimable gate that is still unowned.
	frontier := make([]int, 0, len(owned.IDs))
	for i, id := range owned.IDs {
		if id != 0 {
			frontier = append(frontier, i)
		}
	}

	var res GrowthResult
	pending := make(map[int]int)
	for res.Iterations < maxIter {
		res.Iterations++
		clear(pending)

		for _, i := range frontier {
			r, c := i/cols, i%cols
			for _, d := range neighbors4 {
				nr, nc := r+d[0], c+d[1]
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				n := nr*cols + nc
				if owned.IDs[n] != 0 || !qualifies(n) {
					continue
				}
				if _, seen := pending[n]; seen {
					continue
				}
				pending[n] = highestNeighborID(owned, nr, nc)
			}
		}

		if len(pending) == 0 {
			res.Converged = true
			return res
		}

		frontier = frontier[:0]
		for n, id := range pending {
			owned.IDs[n] = id
			frontier = append(frontier, n)
		}
		res.Claimed += len(pending)
	}

	return res
}

// highestNeighborID returns the largest owner among the 4-neighbors of (r, c).
func highestNeighborID(owned *domain.OwnershipGrid, r, c int) int {
	best := 0
	for _, d := range neighbors4 {
		nr, nc := r+d[0], c+d[1]
		if nr < 0 || nr >= owned.Rows || nc < 0 || nc >= owned.Cols {
			continue
		}
		id := owned.At(nr, nc)
		if id > best {
			best = id
		}
	}
	return best
}
