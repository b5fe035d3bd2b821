package eventbus

import (
	"context"

	"github.com/matthewbaird/outbreak/internal/event"
	"github.com/matthewbaird/outbreak/internal/metrics"
)

// MetricsConsumer counts lifecycle events by type and weight.
type MetricsConsumer struct{}

func NewMetricsConsumer() *MetricsConsumer { return &MetricsConsumer{} }

func (c *MetricsConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	metrics.LifecycleEventsTotal.WithLabelValues(evt.EventType, evt.Weight).Inc()
	return nil
}
