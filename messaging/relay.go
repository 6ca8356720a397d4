/*
Package messaging delivers leave events from the outbox to the outside world.

PURPOSE:
  The coordinator writes events into the outbox in the same unit of work as
  the change that caused them. The Relay polls the outbox and hands each
  event to a Sink (Kafka in production, the log in development), marking it
  delivered only after the sink accepted it.

DELIVERY:
  At-least-once. A crash between publish and MarkDelivered republishes the
  event on the next poll; consumers deduplicate on Event.DedupKey().
  A batch stops at the first failure so events for one request are never
  published out of order.

SEE ALSO:
  - leave/store.go: Outbox, OutboxReader
  - kafka_sink.go, log_sink.go: Sink implementations
*/
package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

const (
	DefaultInterval  = 3 * time.Second
	DefaultBatchSize = 50
)

// Sink publishes a single event. Implementations must be safe to call again
// with the same event.
type Sink interface {
	Publish(ctx context.Context, e leave.Event) error
}

type Relay struct {
	Outbox    leave.OutboxReader
	Sink      Sink
	Interval  time.Duration
	BatchSize int
	Logger    *zap.Logger
}

func NewRelay(outbox leave.OutboxReader, sink Sink, logger ...*zap.Logger) *Relay {
	log := zap.L().Named("messaging.relay")
	if len(logger) > 0 && logger[0] != nil {
		log = logger[0]
	}
	return &Relay{
		Outbox:    outbox,
		Sink:      sink,
		Interval:  DefaultInterval,
		BatchSize: DefaultBatchSize,
		Logger:    log,
	}
}

// Run polls until ctx is done. A final drain is not attempted on shutdown;
// undelivered events stay in the outbox for the next start.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Logger.Info("outbox relay started", zap.Duration("poll_interval", interval))

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				r.Logger.Error("drain outbox failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce publishes one batch of pending events and returns how many were
// delivered. A sink failure marks that event failed and ends the batch
// without returning an error; storage failures are returned.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	batch := r.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	events, err := r.Outbox.PendingEvents(ctx, batch)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	r.Logger.Debug("processing pending outbox events", zap.Int("count", len(events)))

	delivered := 0
	for _, event := range events {
		log := r.Logger.With(
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("request_id", string(event.RequestID)),
		)

		if err := r.Sink.Publish(ctx, event); err != nil {
			log.Warn("publish outbox event failed", zap.Error(err))
			if markErr := r.Outbox.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				log.Error("record delivery failure failed", zap.Error(markErr))
			}
			break
		}

		if err := r.Outbox.MarkDelivered(ctx, event.ID); err != nil {
			// Published but not marked: it will be sent again.
			return delivered, err
		}
		delivered++
		log.Debug("outbox event delivered")
	}

	return delivered, nil
}
