package worker

import (
	"context"

	"github.com/spec-kit/session-bff/internal/events"
	"github.com/spec-kit/session-bff/internal/observability"
)

// StartMetricsWorker counts every session event by type and outcome.
func StartMetricsWorker(dispatcher events.Dispatcher, metrics *observability.Metrics) {
	if dispatcher == nil || metrics == nil {
		return
	}
	for _, eventType := range events.SessionEventTypes {
		dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			metrics.RecordSessionEvent(string(e.Type), e.Outcome)
			return nil
		})
	}
}
