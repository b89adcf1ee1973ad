package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"classattend/internal/metrics"
	"classattend/internal/queue"
)

// Worker consumes attendance events and maintains live lecture counters.
type Worker struct {
	queue    queue.Queue
	counters Counters
	log      *zap.Logger
}

// New creates a worker.
func New(q queue.Queue, counters Counters, log *zap.Logger) *Worker {
	return &Worker{queue: q, counters: counters, log: log}
}

// Run blocks until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			metrics.WorkerEventsProcessed.WithLabelValues(msg.Type, "error").Inc()
			w.log.Warn("event handling failed", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		metrics.WorkerEventsProcessed.WithLabelValues(msg.Type, "ok").Inc()
	}
	w.log.Info("worker stopped")
	return nil
}

// Handle processes one message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeAttendanceMarked {
		return nil
	}
	var evt queue.AttendanceMarked
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	if evt.LectureID == "" {
		return fmt.Errorf("%s without lecture id", msg.Type)
	}
	n, err := w.counters.Incr(ctx, evt.LectureID)
	if err != nil {
		return fmt.Errorf("incr live count: %w", err)
	}
	w.log.Debug("attendance counted",
		zap.String("lecture_id", evt.LectureID),
		zap.String("student_id", evt.StudentID),
		zap.Int64("present", n),
	)
	return nil
}
