package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// LogSink writes events to the logger. Used when no broker is configured.
type LogSink struct {
	Logger *zap.Logger
}

func NewLogSink(logger ...*zap.Logger) *LogSink {
	log := zap.L().Named("messaging.log")
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	return &LogSink{Logger: log}
}

func (s *LogSink) Publish(_ context.Context, e leave.Event) error {
	s.Logger.Info("leave event",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("request_id", string(e.RequestID)),
		zap.String("employee_id", string(e.EmployeeID)),
		zap.String("actor_id", string(e.ActorID)),
		zap.Time("occurred_at", e.OccurredAt),
		zap.String("dedup_key", e.DedupKey()),
	)
	return nil
}
