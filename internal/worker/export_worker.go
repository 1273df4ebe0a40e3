package worker

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets"
	"ledger/internal/storage"
)

// ExportWorker keeps a TransactionMirror in step with the ledger. Events
// only name the transaction; the worker always reads the current row from
// the store, so replayed or reordered events converge on the same state.
type ExportWorker struct {
	store  storage.Reader
	mirror sheets.TransactionMirror
	logger *log.Logger
}

func NewExportWorker(store storage.Reader, mirror sheets.TransactionMirror) *ExportWorker {
	return &ExportWorker{
		store:  store,
		mirror: mirror,
		logger: log.For(log.ComponentWorker),
	}
}

// HandleLedgerEvent applies one ledger event to the mirror. Returning an
// error makes the consumer retry the message once.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldEventID, ev.ID,
		log.FieldEventKind, ev.Kind,
		log.FieldTransactionID, ev.TransactionID)

	if ev.Kind == amqp.TransactionDeleted {
		return w.remove(ctx, ev.TransactionID)
	}

	t, err := w.store.GetTransaction(ctx, ev.OwnerID, ev.TransactionID)
	if core.IsKind(err, core.KindNotFound) {
		// Deleted after the event was published.
		return w.remove(ctx, ev.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", ev.TransactionID, err)
	}

	if err := w.mirror.Upsert(ctx, t); err != nil {
		return fmt.Errorf("upsert transaction %d: %w", t.ID, err)
	}

	w.logger.InfoContext(ctx, "Transaction exported",
		log.FieldTransactionID, t.ID,
		log.FieldTxType, t.Type,
		log.FieldAmount, core.FormatAmount(t.Amount))
	return nil
}

// Resync pushes every transaction of owner to the mirror. It recovers from
// lost events or worker downtime; rows of deleted transactions are left to
// the delete events. A failed row does not stop the others, but any failure
// is returned alongside the count of rows written.
func (w *ExportWorker) Resync(ctx context.Context, ownerID int64) (int, error) {
	txs, err := w.store.ListTransactions(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	synced := 0
	var failures []error
	for _, t := range txs {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.mirror.Upsert(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction during resync",
				log.FieldTransactionID, t.ID,
				log.FieldError, err)
			failures = append(failures, fmt.Errorf("transaction %d: %w", t.ID, err))
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Resync completed",
		log.FieldOperation, log.OpExport,
		log.FieldOwnerID, ownerID,
		"total", len(txs),
		"synced", synced)
	if len(failures) > 0 {
		return synced, fmt.Errorf("export failed for %d of %d transactions: %w",
			len(failures), len(txs), errors.Join(failures...))
	}
	return synced, nil
}

func (w *ExportWorker) remove(ctx context.Context, id int64) error {
	if err := w.mirror.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove transaction %d: %w", id, err)
	}
	w.logger.InfoContext(ctx, "Transaction removed from mirror", log.FieldTransactionID, id)
	return nil
}
