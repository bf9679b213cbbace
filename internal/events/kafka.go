package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by threat model id, so
// every analysis of one model lands on the same partition.
type KafkaPublisher struct {
	writer  messageWriter
	brokers []string
	logger  *zap.Logger
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		brokers: brokers,
		logger:  logger,
	}
}

// PublishAnalysis implements Publisher.
func (k *KafkaPublisher) PublishAnalysis(ctx context.Context, ev AnalysisCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ThreatModelID),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.AnalysisID, err)
	}
	k.logger.Debug("analysis event published", zap.String("analysis_id", ev.AnalysisID))
	return nil
}

// Close flushes pending messages.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// Ping dials the first reachable broker. It backs the readiness probe.
func (k *KafkaPublisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, b := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		return fmt.Errorf("no kafka brokers configured")
	}
	return fmt.Errorf("dial kafka: %w", lastErr)
}
