package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.FramesSkipped.WithLabelValues("stale").Inc()
	assert.NotSame(t, a.FramesSkipped, b.FramesSkipped)
	assert.NotSame(t, a.StateCorrupt, b.StateCorrupt)
}
