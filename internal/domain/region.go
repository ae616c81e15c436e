package domain

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CandidateRegion is an externally supplied storm polygon. Ring vertices are
// (lon, lat) pairs. ID must be positive; 0 means unclaimed.
type CandidateRegion struct {
	ID   int
	Ring orb.Ring
}

// ParseCandidateRegions decodes a ProbSevere-style GeoJSON FeatureCollection.
// Each Polygon feature's exterior ring becomes one region; MultiPolygon features
// contribute one region per member polygon, all sharing the feature ID. The ID is
// read from properties.ID (number or numeric string). Features whose ID cannot be
// read are kept with ID 0 so the mapper reports them as degenerate.
func ParseCandidateRegions(data []byte) ([]CandidateRegion, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse candidate regions: %w", err)
	}

	regions := make([]CandidateRegion, 0, len(fc.Features))
	for _, f := range fc.Features {
		id := featureID(f.Properties)
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				regions = append(regions, CandidateRegion{ID: id, Ring: g[0]})
			}
		case orb.MultiPolygon:
			for _, p := range g {
				if len(p) > 0 {
					regions = append(regions, CandidateRegion{ID: id, Ring: p[0]})
				}
			}
		}
	}
	return regions, nil
}

func featureID(props geojson.Properties) int {
	switch v := props["ID"].(type) {
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// FilterRegions keeps regions with at least one vertex inside the window.
func FilterRegions(regions []CandidateRegion, w Window) []CandidateRegion {
	if w.IsZero() {
		return regions
	}
	kept := make([]CandidateRegion, 0, len(regions))
	for _, r := range regions {
		for _, p := range r.Ring {
			if w.Contains(p.Lat(), p.Lon()) {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}
