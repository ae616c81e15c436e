package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_cells"

// Metrics holds the Prometheus counters, histograms, and gauges for the cell tracker.
type Metrics struct {
	FramesConsumed  prometheus.Counter
	FramesProcessed prometheus.Counter
	FramesSkipped   *prometheus.CounterVec // labels: reason={decode,input_missing,stale,malformed}
	CellsPublished  prometheus.Counter
	ActiveCells     prometheus.Gauge
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	FrameProcessingDuration prometheus.Histogram

	// Detection metrics.
	DegenerateRegions  prometheus.Counter
	GrowthIterations   prometheus.Histogram
	GrowthNotConverged prometheus.Counter
	StateStoreErrors   prometheus.Counter
	StateCorrupt       prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

type metricOpts struct {
	frameDurationBuckets []float64
	batchBuckets         []float64
	iterationBuckets     []float64
	geocodeBuckets       []float64
}

func newMetrics(o metricOpts) *Metrics {
	return &Metrics{
		FramesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_consumed_total",
			Help:      "Total frame messages read from the source topic.",
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total frames that completed a detection and tracking pass.",
		}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames skipped without touching tracked state, by reason.",
		}, []string{"reason"}),
		CellsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_published_total",
			Help:      "Total cell records written to the sink topic.",
		}),
		ActiveCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_cells",
			Help:      "Number of cells tracked after the latest frame.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of frames per batch extracted from Kafka.",
			Buckets:   o.batchBuckets,
		}),
		FrameProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_processing_duration_seconds",
			Help:      "Duration of a detection, tracking, and state save cycle for one frame.",
			Buckets:   o.frameDurationBuckets,
		}),
		DegenerateRegions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degenerate_regions_total",
			Help:      "Candidate regions whose polygon could not cover any gate.",
		}),
		GrowthIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "growth_iterations",
			Help:      "Region growth passes per frame.",
			Buckets:   o.iterationBuckets,
		}),
		GrowthNotConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "growth_not_converged_total",
			Help:      "Frames whose region growth hit the iteration cap.",
		}),
		StateStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_store_errors_total",
			Help:      "Failed loads or saves of the tracked cell state.",
		}),
		StateCorrupt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_corrupt_total",
			Help:      "Tracked cell state files that could not be decoded and were replaced by an empty set.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   o.geocodeBuckets,
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}

// NewMetrics creates and registers all tracker metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(metricOpts{
		batchBuckets:         []float64{1, 2, 5, 10, 20, 50},
		frameDurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		iterationBuckets:     []float64{1, 2, 5, 10, 25, 50, 100},
		geocodeBuckets:       []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	prometheus.MustRegister(
		m.FramesConsumed,
		m.FramesProcessed,
		m.FramesSkipped,
		m.CellsPublished,
		m.ActiveCells,
		m.PipelineRunning,
		m.BatchSize,
		m.FrameProcessingDuration,
		m.DegenerateRegions,
		m.GrowthIterations,
		m.GrowthNotConverged,
		m.StateStoreErrors,
		m.StateCorrupt,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(metricOpts{})
}
