//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("storm-cells-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// regionsGeoJSON is one candidate region over the top-left 2x2 block of frameGrid.
const regionsGeoJSON = `{"type": "FeatureCollection", "features": [{
	"type": "Feature",
	"properties": {"ID": 1},
	"geometry": {"type": "Polygon", "coordinates": [[[-100.5, 38.5], [-98.5, 38.5], [-98.5, 40.5], [-100.5, 40.5], [-100.5, 38.5]]]}
}]}`

// encodeFrame builds a 4x4 frame message. The storm occupies the top-left block
// and extends down the third column by extra gates.
func encodeFrame(t *testing.T, ts time.Time, extra int) []byte {
	t.Helper()

	grid, err := domain.NewGrid(4, 4, []float64{40, 39, 38, 37}, []float64{260, 261, 262, 263})
	require.NoError(t, err)
	values := []float64{
		52, 55, 20, 20,
		50, 58, 20, 20,
		20, 20, 20, 20,
		20, 20, 20, 20,
	}
	for r := 0; r < extra; r++ {
		values[r*4+2] = 45
	}
	refl, err := domain.NewRaster(grid, values)
	require.NoError(t, err)

	data, err := domain.EncodeFrame(domain.Frame{
		Timestamp:    ts,
		Source:       "MRMS_MergedReflectivityQC_3D_" + ts.Format("20060102-150405") + ".grib2",
		Reflectivity: refl,
	}, []byte(regionsGeoJSON))
	require.NoError(t, err)
	return data
}
