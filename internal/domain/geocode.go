package domain

import (
	"context"
	"log/slog"
)

// EnrichWithPlaceNames labels each cell with the place nearest its centroid.
// A nil geocoder leaves the records unchanged. Cells with an undefined centroid
// are skipped, and lookup failures keep the previous label (graceful degradation).
func EnrichWithPlaceNames(ctx context.Context, cells []CellRecord, geocoder Geocoder, logger *slog.Logger) []CellRecord {
	if geocoder == nil {
		return cells
	}

	for i := range cells {
		c := &cells[i]
		if c.Centroid.IsUndefined() {
			continue
		}

		// Mapbox expects longitudes in [-180, 180).
		lon := c.Centroid.Lon
		if lon >= 180 {
			lon -= 360
		}

		result, err := geocoder.ReverseGeocode(ctx, c.Centroid.Lat, lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"cell_id", c.ID,
				"lat", c.Centroid.Lat,
				"lon", lon,
				"error", err,
			)
			continue
		}
		if result.PlaceName != "" {
			c.PlaceName = result.PlaceName
		}
	}
	return cells
}
