package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/couchcryptid/storm-cell-tracker/internal/observability"
	"github.com/couchcryptid/storm-cell-tracker/internal/pipeline"
	"github.com/couchcryptid/storm-cell-tracker/internal/track"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batch []domain.RawFrame
	calls atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawFrame, error) {
	if m.calls.Add(1) == 1 && len(m.batch) > 0 {
		return m.batch, nil
	}
	// block until context cancelled to simulate waiting for messages
	<-ctx.Done()
	return nil, ctx.Err()
}

// mockProcessor answers each call with the next scripted error; once the script
// runs out every frame succeeds.
type mockProcessor struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	frames []string
}

func (m *mockProcessor) Process(_ context.Context, raw domain.RawFrame) (pipeline.FrameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return pipeline.FrameResult{}, err
		}
	}
	m.frames = append(m.frames, string(raw.Key))
	return pipeline.FrameResult{
		FrameTime: t0,
		Cells:     []domain.CellRecord{{ID: 1, NumGates: 4}, {ID: 2, NumGates: 9}},
	}, nil
}

func (m *mockProcessor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockLoader struct {
	mu     sync.Mutex
	errs   []error
	loaded [][]domain.CellRecord
}

func (m *mockLoader) LoadBatch(_ context.Context, _ time.Time, cells []domain.CellRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return err
		}
	}
	m.loaded = append(m.loaded, cells)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

// rawFrame builds a frame message with an offset-recording commit func.
func rawFrame(key string, offset int64, commits *[]int64, mu *sync.Mutex) domain.RawFrame {
	return domain.RawFrame{
		Key:    []byte(key),
		Topic:  "radar-frames",
		Offset: offset,
		Commit: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			*commits = append(*commits, offset)
			return nil
		},
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var mu sync.Mutex
	var commits []int64
	ext := &mockExtractor{batch: []domain.RawFrame{
		rawFrame("a", 1, &commits, &mu),
		rawFrame("b", 2, &commits, &mu),
	}}
	proc := &mockProcessor{}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, proc, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	if diff := cmp.Diff([]string{"a", "b"}, proc.frames); diff != "" {
		t.Errorf("frames processed out of order (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, ldr.count())
	assert.Equal(t, []int64{1, 2}, commits)
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(ctx))

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.FramesConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.FramesProcessed), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.CellsPublished), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ActiveCells), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockProcessor{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
	assert.False(t, p.Ready())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SkipsUnusableFrames(t *testing.T) {
	var mu sync.Mutex
	var commits []int64
	ext := &mockExtractor{batch: []domain.RawFrame{
		rawFrame("stale", 1, &commits, &mu),
		rawFrame("malformed", 2, &commits, &mu),
		rawFrame("missing", 3, &commits, &mu),
		rawFrame("bad-json", 4, &commits, &mu),
	}}
	proc := &mockProcessor{errs: []error{
		fmt.Errorf("%w: frame is old", pipeline.ErrStaleFrame),
		track.ErrMalformedDetections,
		fmt.Errorf("detect: %w", domain.ErrInputMissing),
		errors.New("parse frame: unexpected end of JSON input"),
	}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(ext, proc, ldr, discardLogger(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
	assert.Equal(t, []int64{1, 2, 3, 4}, commits, "skipped frames are still committed")
	assert.False(t, p.Ready())

	for _, reason := range []string{
		pipeline.ReasonStale, pipeline.ReasonMalformed, pipeline.ReasonInputMissing, pipeline.ReasonDecode,
	} {
		assert.InDelta(t, 1, testutil.ToFloat64(metrics.FramesSkipped.WithLabelValues(reason)), 0, reason)
	}
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.FramesProcessed), 0)
}

func TestPipeline_Run_RetriesFrameOnStateStoreError(t *testing.T) {
	var mu sync.Mutex
	var commits []int64
	ext := &mockExtractor{batch: []domain.RawFrame{rawFrame("a", 7, &commits, &mu)}}
	proc := &mockProcessor{errs: []error{fmt.Errorf("%w: save: disk full", pipeline.ErrStateStore)}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, proc, ldr, discardLogger(), metrics, 10, pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	mu.Lock()
	assert.Empty(t, commits, "no commit while the frame is pending")
	mu.Unlock()
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return ldr.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 2, proc.calls)
	assert.Equal(t, []int64{7}, commits)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StateStoreErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.FramesProcessed), 0)
}

func TestPipeline_Run_BackoffDoublesBetweenRetries(t *testing.T) {
	var mu sync.Mutex
	var commits []int64
	ext := &mockExtractor{batch: []domain.RawFrame{rawFrame("a", 1, &commits, &mu)}}
	storeErr := fmt.Errorf("%w: load: disk busy", pipeline.ErrStateStore)
	proc := &mockProcessor{errs: []error{storeErr, storeErr}}
	ldr := &mockLoader{}
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, proc, ldr, discardLogger(), observability.NewMetricsForTesting(), 10, pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, proc.callCount())
	clock.Advance(399 * time.Millisecond)
	assert.Never(t, func() bool { return proc.callCount() > 2 }, 50*time.Millisecond, 5*time.Millisecond,
		"second retry waits the doubled backoff")
	clock.Advance(time.Millisecond)

	require.Eventually(t, func() bool { return ldr.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 3, proc.calls)
	assert.Equal(t, []int64{1}, commits)
}

func TestPipeline_Run_RetriesPublish(t *testing.T) {
	var mu sync.Mutex
	var commits []int64
	ext := &mockExtractor{batch: []domain.RawFrame{rawFrame("a", 3, &commits, &mu)}}
	proc := &mockProcessor{}
	ldr := &mockLoader{errs: []error{errors.New("broker unavailable")}}
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, proc, ldr, discardLogger(), observability.NewMetricsForTesting(), 10, pipeline.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return ldr.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, proc.calls, "publish retries do not reprocess the frame")
	assert.Equal(t, []int64{3}, commits)
	assert.True(t, p.Ready())
}

func TestPipeline_Run_CommitFailureDoesNotStop(t *testing.T) {
	raw := domain.RawFrame{
		Key:    []byte("a"),
		Commit: func(context.Context) error { return errors.New("coordinator moved") },
	}
	ext := &mockExtractor{batch: []domain.RawFrame{raw}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockProcessor{}, ldr, discardLogger(), observability.NewMetricsForTesting(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 1, ldr.count())
	assert.True(t, p.Ready())
}
