package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/strcalc/internal/core/domain"
)

// LogPublisher writes each event as a structured log line. It is the default
// sink when no webhook is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.Info("outbox publish",
		zap.String("topic", topic),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("tenant", event.TenantID),
		zap.String("calculation_id", event.AggregateID),
		zap.String("request_id", event.RequestID),
	)
	return nil
}
