package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/couchcryptid/storm-cell-tracker/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw frames from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawFrame, error)
}

// Processor runs detection and tracking for one raw frame.
type Processor interface {
	Process(ctx context.Context, raw domain.RawFrame) (FrameResult, error)
}

// BatchLoader publishes the cells tracked after a frame.
type BatchLoader interface {
	LoadBatch(ctx context.Context, frameTime time.Time, cells []domain.CellRecord) error
}

// Pipeline orchestrates the extract-process-load loop, one frame at a time.
type Pipeline struct {
	extractor BatchExtractor
	processor Processor
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	ready     atomic.Bool
	batchSize int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the clock used for backoff sleeps and durations.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, pr Processor, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: e,
		processor: pr,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		batchSize: batchSize,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ready reports whether at least one frame has been processed and published.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil if the pipeline has processed at least one frame,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any frames yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// processBatch extracts a batch and handles its frames in order. Returns false if
// the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.FramesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	for _, raw := range batch {
		if !p.handleFrame(ctx, raw, backoff) {
			return false
		}
	}
	return true
}

// handleFrame processes one frame, publishes its cells, and commits its offset.
// Frames that cannot be used are skipped and committed. State store and publish
// failures are retried with backoff until they succeed or the context ends.
// Returns false if the pipeline should stop.
func (p *Pipeline) handleFrame(ctx context.Context, raw domain.RawFrame, backoff *time.Duration) bool {
	for {
		start := p.clock.Now()
		res, err := p.processor.Process(ctx, raw)
		if err == nil {
			if !p.publish(ctx, res, backoff) {
				return false
			}
			p.metrics.FrameProcessingDuration.Observe(p.clock.Since(start).Seconds())
			p.metrics.FramesProcessed.Inc()
			p.metrics.ActiveCells.Set(float64(len(res.Cells)))
			p.commitOffset(ctx, raw)
			p.ready.Store(true)
			*backoff = initialBackoff
			return true
		}

		if errors.Is(err, ErrStateStore) {
			p.logger.Error("state store failed, retrying frame", "error", err, "offset", raw.Offset)
			p.metrics.StateStoreErrors.Inc()
			if !p.backoffOrStop(ctx, backoff) {
				return false
			}
			continue
		}
		if ctx.Err() != nil {
			return false
		}

		reason := SkipReason(err)
		p.logger.Warn("skipping frame",
			"reason", reason,
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.FramesSkipped.WithLabelValues(reason).Inc()
		p.commitOffset(ctx, raw)
		return true
	}
}

// publish loads the frame's cells, retrying with backoff. Returns false if the
// pipeline should stop.
func (p *Pipeline) publish(ctx context.Context, res FrameResult, backoff *time.Duration) bool {
	for {
		err := p.loader.LoadBatch(ctx, res.FrameTime, res.Cells)
		if err == nil {
			p.metrics.CellsPublished.Add(float64(len(res.Cells)))
			return true
		}
		p.logger.Error("publish cells failed", "error", err, "cells", len(res.Cells), "frame_time", res.FrameTime)
		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !p.sleep(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawFrame) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
