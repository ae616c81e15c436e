package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/detect"
	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/couchcryptid/storm-cell-tracker/internal/observability"
	"github.com/couchcryptid/storm-cell-tracker/internal/track"
)

var (
	// ErrStaleFrame marks a frame older than the newest tracked snapshot.
	ErrStaleFrame = errors.New("stale frame")

	// ErrStateStore wraps failures to load or save tracked cells. The frame is
	// retried rather than skipped.
	ErrStateStore = errors.New("state store")
)

// Skip reasons reported in logs and the frames_skipped_total metric.
const (
	ReasonDecode       = "decode"
	ReasonInputMissing = "input_missing"
	ReasonStale        = "stale"
	ReasonMalformed    = "malformed"
)

// SkipReason classifies why a frame could not be used.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInputMissing):
		return ReasonInputMissing
	case errors.Is(err, ErrStaleFrame):
		return ReasonStale
	case errors.Is(err, track.ErrMalformedDetections):
		return ReasonMalformed
	default:
		return ReasonDecode
	}
}

// StateStore persists the tracked cells between frames.
type StateStore interface {
	Load(ctx context.Context) ([]domain.CellRecord, error)
	Save(ctx context.Context, cells []domain.CellRecord) error
}

// FrameResult is the tracked cell set after a frame.
type FrameResult struct {
	FrameTime time.Time
	Cells     []domain.CellRecord
	Detected  int
	New       int
	Dropped   int
}

// CellProcessor implements Processor: it detects cells in a frame, reconciles them
// with the tracked set, and persists the result. Pass a nil geocoder to disable
// place-name enrichment.
type CellProcessor struct {
	detector *detect.Detector
	tracker  *track.Tracker
	store    StateStore
	geocoder domain.Geocoder
	window   domain.Window
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.RWMutex
	cells  []domain.CellRecord
	loaded bool
}

// NewProcessor creates a CellProcessor. A non-zero window restricts every frame
// before detection.
func NewProcessor(d *detect.Detector, t *track.Tracker, store StateStore, geocoder domain.Geocoder, window domain.Window, logger *slog.Logger, metrics *observability.Metrics) *CellProcessor {
	return &CellProcessor{
		detector: d,
		tracker:  t,
		store:    store,
		geocoder: geocoder,
		window:   window,
		logger:   logger,
		metrics:  metrics,
	}
}

// Process decodes a frame and advances the tracked state by one frame. On any
// error the tracked state is left as it was.
func (p *CellProcessor) Process(ctx context.Context, raw domain.RawFrame) (FrameResult, error) {
	frame, err := domain.ParseFrame(raw)
	if err != nil {
		return FrameResult{}, err
	}
	return p.ProcessFrame(ctx, frame)
}

// ProcessFrame runs detection and tracking on a decoded frame.
func (p *CellProcessor) ProcessFrame(ctx context.Context, frame domain.Frame) (FrameResult, error) {
	frame, err := frame.Restrict(p.window)
	if err != nil {
		return FrameResult{}, fmt.Errorf("restrict frame to window: %w", err)
	}

	det, err := p.detector.Detect(frame)
	if err != nil {
		return FrameResult{}, err
	}

	existing, err := p.current(ctx)
	if err != nil {
		return FrameResult{}, err
	}
	if latest := track.Latest(existing); frame.Timestamp.Before(latest) {
		return FrameResult{}, fmt.Errorf("%w: frame %s is older than tracked state %s",
			ErrStaleFrame, frame.Timestamp.Format(time.RFC3339), latest.Format(time.RFC3339))
	}

	reconciled, err := p.tracker.Reconcile(existing, det.Records)
	if err != nil {
		return FrameResult{}, err
	}
	cells := p.tracker.AppendHistory(reconciled, frame.Timestamp)
	cells = domain.EnrichWithPlaceNames(ctx, cells, p.geocoder, p.logger)

	if err := p.store.Save(ctx, cells); err != nil {
		return FrameResult{}, fmt.Errorf("%w: save: %w", ErrStateStore, err)
	}

	res := FrameResult{
		FrameTime: frame.Timestamp,
		Cells:     cells,
		Detected:  len(det.Records),
	}
	res.New, res.Dropped = churn(existing, cells)

	p.mu.Lock()
	p.cells = cells
	p.mu.Unlock()

	p.logger.Info("frame processed",
		"frame_time", frame.Timestamp,
		"source", frame.Source,
		"cells", len(cells),
		"new", res.New,
		"dropped", res.Dropped,
	)
	return res, nil
}

// Cells returns a copy of the cells tracked after the latest frame.
func (p *CellProcessor) Cells() []domain.CellRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.cells)
}

// current returns the tracked cells, loading them from the store on first use.
// Stored state that cannot be decoded is discarded and tracking restarts empty;
// any other load failure is an ErrStateStore.
func (p *CellProcessor) current(ctx context.Context) ([]domain.CellRecord, error) {
	p.mu.RLock()
	loaded, cells := p.loaded, p.cells
	p.mu.RUnlock()
	if loaded {
		return cells, nil
	}

	cells, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCorruptState):
		p.logger.Error("tracked state unreadable, starting from an empty cell set", "error", err)
		p.metrics.StateCorrupt.Inc()
		cells = []domain.CellRecord{}
	case err != nil:
		return nil, fmt.Errorf("%w: load: %w", ErrStateStore, err)
	}
	p.logger.Info("tracked state loaded", "cells", len(cells))

	p.mu.Lock()
	p.cells, p.loaded = cells, true
	p.mu.Unlock()
	return cells, nil
}

// churn counts cells that appeared in and disappeared from the tracked set.
func churn(before, after []domain.CellRecord) (added, dropped int) {
	seen := make(map[int]bool, len(before))
	for _, c := range before {
		seen[c.ID] = true
	}
	for _, c := range after {
		if !seen[c.ID] {
			added++
		}
		delete(seen, c.ID)
	}
	return added, len(seen)
}
