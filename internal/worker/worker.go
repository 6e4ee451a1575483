package worker

import (
	"context"

	"go.uber.org/zap"

	"schoolattend/internal/attendance"
	"schoolattend/internal/metrics"
	"schoolattend/internal/queue"
)

// Refresher recomputes the cached roster summary.
type Refresher interface {
	RefreshSummary(ctx context.Context) ([]attendance.RosterEntry, error)
}

// Run consumes q until ctx is done. Each attendance.submitted event re-warms the
// roster summary so the next report read is a cache hit.
func Run(ctx context.Context, q queue.Queue, refresher Refresher, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info("worker started, waiting for messages")
	for msg := range messages {
		handle(ctx, msg, refresher, log)
	}
	log.Info("worker stopped")
	return nil
}

func handle(ctx context.Context, msg queue.Message, refresher Refresher, log *zap.Logger) {
	switch msg.Type {
	case attendance.EventSubmitted:
		var evt attendance.SubmittedEvent
		if err := msg.Decode(&evt); err != nil {
			log.Warn("malformed event", zap.String("type", msg.Type), zap.Error(err))
			metrics.WorkerEvents.WithLabelValues(msg.Type, "malformed").Inc()
			return
		}
		rows, err := refresher.RefreshSummary(ctx)
		if err != nil {
			log.Error("summary refresh failed", zap.String("date", evt.Date), zap.Error(err))
			metrics.WorkerEvents.WithLabelValues(msg.Type, "failed").Inc()
			return
		}
		log.Debug("summary refreshed",
			zap.String("date", evt.Date), zap.Int("records", evt.Count), zap.Int("students", len(rows)))
		metrics.WorkerEvents.WithLabelValues(msg.Type, "processed").Inc()
	default:
		metrics.WorkerEvents.WithLabelValues(msg.Type, "ignored").Inc()
	}
}
