package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkrishang/mad-protocol/internal/observability"
)

// Worker drains the core's persist channel, accumulates events into
// batches, and flushes each batch in a single transaction. The core
// blocks on the channel when the worker falls behind, so durability
// backpressure propagates all the way to ingestion.
type Worker struct {
	db        *sql.DB
	writer    *EventLogWriter
	inputChan <-chan CoreOutput
	batchSize int
	flushTick time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger

	pendingEvents   []EventRow
	pendingJournals []JournalRow
	lastSequence    int64
}

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

func NewWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTick time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		db:        db,
		writer:    NewEventLogWriter(db),
		inputChan: inputChan,
		batchSize: batchSize,
		flushTick: flushTick,
		metrics:   metrics,
		logger:    observability.NewLogger("persistence"),
	}
}

// Run processes the channel until ctx is cancelled or the channel is
// closed. On shutdown the remaining buffer is flushed with a background
// context so nothing buffered is lost.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				w.finalFlush()
				return nil
			}

			w.append(output)

			if len(w.pendingEvents) >= w.batchSize {
				w.flushWithRetry(ctx)
			}

		case <-ticker.C:
			if len(w.pendingEvents) > 0 {
				w.flushWithRetry(ctx)
			}
		}
	}
}

func (w *Worker) append(output CoreOutput) {
	w.pendingEvents = append(w.pendingEvents, output.EventRow)
	w.pendingJournals = append(w.pendingJournals, output.JournalRows...)
	w.lastSequence = output.EventRow.Sequence

	if w.metrics != nil {
		w.metrics.SetChannelMetrics("persist", len(w.inputChan), cap(w.inputChan))
	}
}

// flushWithRetry retries forever with exponential backoff. The event
// log is the source of truth: dropping a batch is never acceptable, so
// the worker stalls (and with it, via channel backpressure, the core)
// until Postgres accepts the write.
func (w *Worker) flushWithRetry(ctx context.Context) {
	delay := retryBaseDelay

	for attempt := 0; ; attempt++ {
		err := w.flush(ctx)
		if err == nil {
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("flush").Inc()
			w.metrics.PersistRetry.Inc()
		}
		w.logger.Error().Err(err).
			Int("attempt", attempt+1).
			Int("events", len(w.pendingEvents)).
			Dur("retry_in", delay).
			Msg("flush failed, retrying")

		select {
		case <-ctx.Done():
			// Shutdown mid-retry: one last attempt off the cancelled
			// context before giving up.
			if err := w.flushDetached(); err != nil {
				w.logger.Error().Err(err).Msg("final flush during shutdown failed")
			}
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

func (w *Worker) flush(ctx context.Context) error {
	if len(w.pendingEvents) == 0 {
		return nil
	}

	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := w.writer.WriteEventBatch(ctx, tx, w.pendingEvents); err != nil {
		tx.Rollback()
		return fmt.Errorf("write events: %w", err)
	}

	if err := w.writer.WriteJournalBatch(ctx, tx, w.pendingJournals); err != nil {
		tx.Rollback()
		return fmt.Errorf("write journals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if w.metrics != nil {
		w.metrics.PersistEventsWritten.Add(float64(len(w.pendingEvents)))
		w.metrics.PersistJournalsWritten.Add(float64(len(w.pendingJournals)))
		w.metrics.PersistBatchSize.Observe(float64(len(w.pendingEvents)))
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistLastSequence.Set(float64(w.lastSequence))
	}

	w.pendingEvents = w.pendingEvents[:0]
	w.pendingJournals = w.pendingJournals[:0]

	return nil
}

// finalFlush drains whatever arrived after cancellation and writes the
// remaining buffer using a fresh context.
func (w *Worker) finalFlush() {
	for draining := true; draining; {
		select {
		case output, ok := <-w.inputChan:
			if !ok {
				draining = false
			} else {
				w.append(output)
			}
		default:
			draining = false
		}
	}

	if len(w.pendingEvents) == 0 {
		return
	}

	if err := w.flushDetached(); err != nil {
		w.logger.Error().Err(err).
			Int("events", len(w.pendingEvents)).
			Msg("final flush failed, buffered events not persisted")
		return
	}

	w.logger.Info().Int64("last_sequence", w.lastSequence).Msg("final flush complete")
}

func (w *Worker) flushDetached() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.flush(ctx)
}
