package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"ShadowSettle/internal/observability"
	"ShadowSettle/internal/state"
)

// CoreOutput mirrors core.CoreOutput with entity rows flattened for
// storage. The orchestrator (cmd/main.go) bridges between core.CoreOutput
// and this to keep the core free of persistence concerns.
type CoreOutput struct {
	EventRow    EventRow
	Orders      []*state.Order
	Matches     []*state.PendingMatch
	Settlements []*state.SettlementRequest
	Positions   []*state.ConfidentialPosition
	Batches     []*state.LiquidationBatch
}

// PersistenceWorker drains the persist channel and batch-writes to
// Postgres. This goroutine runs independently from the deterministic core.
// The persist channel uses BLOCKING sends from the core, so if this worker
// falls behind, the core stalls. No event is lost.
type PersistenceWorker struct {
	writer       *EventLogWriter
	db           *sql.DB
	inputChan    <-chan CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewEventLogWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]CoreOutput, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				// Channel closed, flush and exit
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, output)

			if len(batch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				batch = batch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// never drops events; it retries until the write succeeds or the context
// is cancelled, then makes one final attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch []CoreOutput) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, events=%d)",
				attempt, backoff, len(batch))
			select {
			case <-ctx.Done():
				finalErr := pw.flush(context.Background(), batch)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistRetry.Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch []CoreOutput) error {
	start := time.Now()

	events := make([]EventRow, 0, len(batch))
	var (
		orders      []*state.Order
		matches     []*state.PendingMatch
		settlements []*state.SettlementRequest
		positions   []*state.ConfidentialPosition
		batches     []*state.LiquidationBatch
	)
	for _, out := range batch {
		events = append(events, out.EventRow)
		orders = append(orders, out.Orders...)
		matches = append(matches, out.Matches...)
		settlements = append(settlements, out.Settlements...)
		positions = append(positions, out.Positions...)
		batches = append(batches, out.Batches...)
	}

	// Event log and entity upserts commit atomically
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}
	if err := pw.writer.UpsertOrders(ctx, tx, orders); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("upsert_orders").Inc()
		}
		return err
	}
	if err := pw.writer.UpsertMatches(ctx, tx, matches); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("upsert_matches").Inc()
		}
		return err
	}
	if err := pw.writer.UpsertSettlements(ctx, tx, settlements); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("upsert_settlements").Inc()
		}
		return err
	}
	if err := pw.writer.UpsertPositions(ctx, tx, positions); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("upsert_positions").Inc()
		}
		return err
	}
	if err := pw.writer.UpsertBatches(ctx, tx, batches); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("upsert_batches").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		if len(events) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
		}
	}

	return nil
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *EventLogWriter {
	return pw.writer
}
