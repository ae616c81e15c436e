package detect

import (
	"math"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RecordOptions controls cell record construction.
type RecordOptions struct {
	ContourStep  int
	HailCoreStep int
	// HailCode is the precipitation-type code that marks hail.
	HailCode float64
}

// BuildRecords summarizes every region of the final ownership grid, in ascending ID
// order. Statistics use only non-NaN samples; a region without any yields an
// undefined centroid and peak. Records start with an empty history.
func BuildRecords(owned *domain.OwnershipGrid, refl domain.Raster, precip *domain.Raster, opts RecordOptions) []domain.CellRecord {
	ids := owned.RegionIDs()
	records := make([]domain.CellRecord, 0, len(ids))

	for _, id := range ids {
		mask, ok := regionMask(owned, id, nil)
		if !ok {
			continue
		}

		rec := domain.CellRecord{
			ID:           id,
			NumGates:     owned.Count(id),
			Boundary:     Boundary(refl.Grid, mask, opts.ContourStep),
			StormHistory: []domain.Snapshot{},
		}
		peak, centroid := weightedCentroid(refl, mask)
		rec.MaxRefl = domain.Float(peak)
		rec.Centroid = centroid

		if precip != nil {
			rec.HailCore = hailCore(owned, refl.Grid, *precip, id, opts)
		}
		records = append(records, rec)
	}
	return records
}

// weightedCentroid returns the peak value and the exp(value)-weighted mean position
// of the masked gates. Weights are computed as exp(v - peak); the common factor
// exp(-peak) cancels in the weighted mean and keeps large values finite.
func weightedCentroid(refl domain.Raster, mask Mask) (float64, domain.LatLon) {
	var vals, lats, lons []float64
	for i, set := range mask.Set {
		if !set {
			continue
		}
		v := refl.Values[i]
		if math.IsNaN(v) {
			continue
		}
		lat, lon := refl.At(i/refl.Cols, i%refl.Cols)
		vals = append(vals, v)
		lats = append(lats, lat)
		lons = append(lons, lon)
	}
	if len(vals) == 0 {
		return math.NaN(), domain.UndefinedLatLon()
	}

	peak := floats.Max(vals)
	weights := make([]float64, len(vals))
	for i, v := range vals {
		weights[i] = math.Exp(v - peak)
	}

	// Keep longitudes continuous across the seam before averaging.
	for i := range lons {
		lons[i] = domain.UnwrapLon(lons[i], lons[0])
	}

	return peak, domain.LatLon{
		Lat: stat.Mean(lats, weights),
		Lon: domain.NormalizeLon(stat.Mean(lons, weights)),
	}
}

// hailCore traces the gates of region id whose precipitation code is hail.
func hailCore(owned *domain.OwnershipGrid, grid domain.Grid, precip domain.Raster, id int, opts RecordOptions) domain.Contour {
	if len(precip.Values) != len(owned.IDs) {
		return domain.Contour{}
	}
	mask, ok := regionMask(owned, id, func(i int) bool {
		return precip.Values[i] == opts.HailCode
	})
	if !ok {
		return domain.Contour{}
	}
	return Boundary(grid, mask, opts.HailCoreStep)
}
