package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-cell-tracker/internal/config"
	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes cell records to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
// Messages are keyed by cell ID so that one cell's updates stay ordered.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes the tracked cells of one frame in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, frameTime time.Time, cells []domain.CellRecord) error {
	if len(cells) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(cells))
	for i := range cells {
		msg, err := serializeToMessage(cells[i], frameTime)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a CellRecord into a Kafka message.
func serializeToMessage(cell domain.CellRecord, frameTime time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(cell)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cell %d: %w", cell.ID, err)
	}
	id := strconv.Itoa(cell.ID)
	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "cell_id", Value: []byte(id)},
			{Key: "frame_time", Value: []byte(frameTime.UTC().Format(time.RFC3339Nano))},
		},
	}, nil
}
