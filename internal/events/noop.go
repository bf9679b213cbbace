package events

import (
	"context"

	"go.uber.org/zap"
)

// NoopPublisher logs events instead of delivering them. Used when no Kafka
// brokers are configured.
type NoopPublisher struct {
	logger *zap.Logger
}

// NewNoopPublisher creates a NoopPublisher backed by the given logger.
func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// PublishAnalysis logs ev and returns nil.
func (n *NoopPublisher) PublishAnalysis(_ context.Context, ev AnalysisCompleted) error {
	n.logger.Debug("analysis event (not published)",
		zap.String("analysis_id", ev.AnalysisID),
		zap.String("threat_model_id", ev.ThreatModelID),
		zap.String("risk_level", string(ev.RiskLevel)),
		zap.Int("threats", ev.ThreatCount),
	)
	return nil
}

// Close is a no-op.
func (n *NoopPublisher) Close() error { return nil }
