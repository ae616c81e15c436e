package detect

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/couchcryptid/storm-cell-tracker/internal/observability"
)

// Options tunes a detection pass.
type Options struct {
	// Threshold is the minimum reflectivity (dBZ) a gate needs to be claimed by growth.
	Threshold     float64
	MaxIterations int
	ContourStep   int
	HailCoreStep  int
	HailCode      float64
}

// DefaultOptions returns the operational defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:     40,
		MaxIterations: 100,
		ContourStep:   8,
		HailCoreStep:  5,
		HailCode:      7,
	}
}

// Detection is the output of one detection pass.
type Detection struct {
	Records []domain.CellRecord
	// Owned is the final ownership grid after growth.
	Owned  *domain.OwnershipGrid
	Map    MapResult
	Growth GrowthResult
}

// Detector runs the mapping, growth, and summarizing stages over a frame.
type Detector struct {
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDetector creates a Detector.
func NewDetector(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Detector {
	return &Detector{opts: opts, logger: logger, metrics: metrics}
}

// Detect identifies storm cells in a frame. A frame without usable reflectivity
// data fails with domain.ErrInputMissing. Degenerate candidate regions and
// growth that hits the iteration cap are reported but do not fail the pass.
func (d *Detector) Detect(frame domain.Frame) (Detection, error) {
	if err := frame.Validate(); err != nil {
		return Detection{}, fmt.Errorf("detect: %w", err)
	}
	refl := frame.Reflectivity

	mapped := MapGates(refl.Grid, frame.Regions)
	if mapped.Degenerate > 0 {
		d.logger.Warn("skipped degenerate candidate regions",
			"count", mapped.Degenerate,
			"frame_time", frame.Timestamp,
		)
		d.metrics.DegenerateRegions.Add(float64(mapped.Degenerate))
	}

	owned := mapped.Owned.Clone()
	growth := Grow(owned, refl, d.opts.Threshold, d.opts.MaxIterations)
	d.metrics.GrowthIterations.Observe(float64(growth.Iterations))
	if !growth.Converged {
		d.logger.Warn("region growth stopped at iteration cap",
			"iterations", growth.Iterations,
			"claimed", growth.Claimed,
			"frame_time", frame.Timestamp,
		)
		d.metrics.GrowthNotConverged.Inc()
	}

	records := BuildRecords(owned, refl, frame.PrecipType, RecordOptions{
		ContourStep:  d.opts.ContourStep,
		HailCoreStep: d.opts.HailCoreStep,
		HailCode:     d.opts.HailCode,
	})

	d.logger.Debug("detection pass complete",
		"frame_time", frame.Timestamp,
		"regions", len(frame.Regions),
		"cells", len(records),
		"growth_iterations", growth.Iterations,
	)

	return Detection{
		Records: records,
		Owned:   owned,
		Map:     mapped,
		Growth:  growth,
	}, nil
}
