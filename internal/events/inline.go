package events

import (
	"context"

	"github.com/anonto42/questlog/backend/pkg/metrics"
)

// InlinePublisher hands events straight to a Handler in the calling goroutine.
// It is used when no Kafka brokers are configured.
type InlinePublisher struct {
	handler Handler
}

func NewInlinePublisher(handler Handler) *InlinePublisher {
	return &InlinePublisher{handler: handler}
}

func (p *InlinePublisher) Publish(ctx context.Context, event Event) error {
	err := p.handler.Handle(ctx, event)
	metrics.EventsPublished.WithLabelValues(event.Type, metrics.Outcome(err)).Inc()
	return err
}

func (p *InlinePublisher) Close() error { return nil }
