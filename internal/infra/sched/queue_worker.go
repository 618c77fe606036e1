package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// QueueProcessor drains one batch of the email queue.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context) (int, error)
}

// QueueWorker ticks the email queue. Overlapping runs across replicas are
// handled by the processor's own lock.
type QueueWorker struct {
	interval time.Duration
	queue    QueueProcessor
	log      *zerolog.Logger
}

func NewQueueWorker(interval time.Duration, queue QueueProcessor, logger *zerolog.Logger) *QueueWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "QueueWorker").Logger()
	return &QueueWorker{interval: interval, queue: queue, log: &l}
}

func (w *QueueWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting email queue worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping email queue worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *QueueWorker) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()
	n, err := w.queue.ProcessQueue(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("email queue run failed")
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("queued emails processed")
	}
}
