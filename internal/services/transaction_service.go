package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// EventPublisher announces committed ledger changes.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// TransactionService is the transaction engine. Every mutation runs in one
// unit of work that writes the record and moves the affected balances
// together; events go out only after commit.
type TransactionService struct {
	store     storage.Store
	publisher EventPublisher
	logger    *log.Logger
}

// NewTransactionService creates the engine. publisher may be nil.
func NewTransactionService(store storage.Store, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
		logger:    log.For(log.ComponentLedger),
	}
}

// CreateTransaction records an income, expense or transfer and applies its
// effect. Transfers follow the transfer protocol.
func (s *TransactionService) CreateTransaction(ctx context.Context, ownerID int64, in core.NewTransaction) (core.Transaction, error) {
	if in.Type == core.Transfer {
		if in.AccountID == nil || in.ToAccountID == nil || in.CreditCardID != nil {
			return core.Transaction{}, core.ErrTransferShape
		}
		return s.CreateTransfer(ctx, ownerID, core.NewTransfer{
			Description:   in.Description,
			Amount:        in.Amount,
			Date:          in.Date,
			FromAccountID: *in.AccountID,
			ToAccountID:   *in.ToAccountID,
		})
	}

	t := in.Transaction(ownerID)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var created core.Transaction
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := reconcile(ctx, tx, ownerID, core.Net(t.Effects()), nil); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertTransaction(ctx, t)
		return err
	})
	if err != nil {
		return core.Transaction{}, s.fail(ctx, log.OpCreate, ownerID, err)
	}

	s.logger.InfoContext(ctx, "Transaction created", s.fields(log.OpCreate, created)...)
	s.publish(ctx, amqp.TransactionCreated, created)
	return created, nil
}

// CreateTransfer moves amount from one of the owner's accounts to another.
// The source may not go below zero. Accounts that are absent or foreign are
// reported as not found.
func (s *TransactionService) CreateTransfer(ctx context.Context, ownerID int64, in core.NewTransfer) (core.Transaction, error) {
	if in.FromAccountID == in.ToAccountID {
		return core.Transaction{}, core.ErrSameAccount
	}

	t := in.Transaction(ownerID)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var created core.Transaction
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if err := reconcile(ctx, tx, ownerID, core.Net(t.Effects()), t.AccountID); err != nil {
			return err
		}
		var err error
		created, err = tx.InsertTransaction(ctx, t)
		return err
	})
	if err != nil {
		return core.Transaction{}, s.fail(ctx, log.OpTransfer, ownerID, err)
	}

	s.logger.InfoContext(ctx, "Transfer created", s.fields(log.OpTransfer, created)...)
	s.publish(ctx, amqp.TransferCreated, created)
	return created, nil
}

// UpdateTransaction reverts the stored effect, applies the patch and
// re-applies the new effect, possibly on different targets.
func (s *TransactionService) UpdateTransaction(ctx context.Context, ownerID, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	var updated core.Transaction
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		old, err := tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}

		updated = patch.Apply(old)
		updated.ID = old.ID
		updated.OwnerID = old.OwnerID
		if err := updated.Validate(); err != nil {
			return err
		}

		var source *int64
		if updated.Type == core.Transfer {
			source = updated.AccountID
		}
		if err := reconcile(ctx, tx, ownerID, core.Net(old.Reverts(), updated.Effects()), source); err != nil {
			return err
		}
		return tx.UpdateTransaction(ctx, updated)
	})
	if err != nil {
		return core.Transaction{}, s.fail(ctx, log.OpUpdate, ownerID, err)
	}

	s.logger.InfoContext(ctx, "Transaction updated", s.fields(log.OpUpdate, updated)...)
	s.publish(ctx, amqp.TransactionUpdated, updated)
	return updated, nil
}

// DeleteTransaction reverts the effect and removes the record.
func (s *TransactionService) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	var deleted core.Transaction
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		deleted, err = tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := reconcile(ctx, tx, ownerID, core.Net(deleted.Reverts()), nil); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, ownerID, id)
	})
	if err != nil {
		return s.fail(ctx, log.OpDelete, ownerID, err)
	}

	s.logger.InfoContext(ctx, "Transaction deleted", s.fields(log.OpDelete, deleted)...)
	s.publish(ctx, amqp.TransactionDeleted, deleted)
	return nil
}

// ListTransactions returns a snapshot of the owner's transactions ordered
// by date, then id.
func (s *TransactionService) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, internal("list transactions", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, internal("get transaction", err)
	}
	return t, nil
}

// reconcile locks every target in net (accounts ascending, then cards
// ascending) and stores the new balances. When noOverdraft names an
// account that net debits, that account must not end below zero.
func reconcile(ctx context.Context, tx storage.Tx, ownerID int64, net map[core.Target]decimal.Decimal, noOverdraft *int64) error {
	targets := make([]core.Target, 0, len(net))
	for t := range net {
		targets = append(targets, t)
	}
	accountIDs, cardIDs := core.SplitTargets(targets)

	accounts, err := tx.LockAccounts(ctx, ownerID, accountIDs)
	if err != nil {
		return err
	}
	cards, err := tx.LockCards(ctx, ownerID, cardIDs)
	if err != nil {
		return err
	}

	if noOverdraft != nil {
		delta := net[core.Target{Kind: core.AccountTarget, ID: *noOverdraft}]
		if delta.IsNegative() && accounts[*noOverdraft].Balance.Add(delta).IsNegative() {
			return core.ErrInsufficientFunds
		}
	}

	for _, id := range accountIDs {
		delta := net[core.Target{Kind: core.AccountTarget, ID: id}]
		if delta.IsZero() {
			continue
		}
		if err := tx.SetAccountBalance(ctx, ownerID, id, accounts[id].Balance.Add(delta)); err != nil {
			return err
		}
	}
	for _, id := range cardIDs {
		delta := net[core.Target{Kind: core.CardTarget, ID: id}]
		if delta.IsZero() {
			continue
		}
		if err := tx.SetCardBill(ctx, ownerID, id, cards[id].CurrentBill.Add(delta)); err != nil {
			return err
		}
	}
	return nil
}

func (s *TransactionService) publish(ctx context.Context, kind amqp.EventKind, t core.Transaction) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher, skipping ledger event", log.FieldEventKind, kind)
		return
	}

	ev := amqp.NewLedgerEvent(kind, t.OwnerID, t.ID)
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		// The change is committed; the mirror catches up on the next event.
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventID, ev.ID,
			log.FieldEventKind, kind,
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
	}
}

func (s *TransactionService) fields(op string, t core.Transaction) []any {
	return log.NewFields().
		WithOperation(op).
		WithOwner(t.OwnerID).
		WithTransaction(t.ID, string(t.Type), t.Amount, t.AccountID, t.CreditCardID, t.ToAccountID).
		ToSlice()
}

// fail logs unexpected failures and gives every error a kind.
func (s *TransactionService) fail(ctx context.Context, op string, ownerID int64, err error) error {
	kind := core.KindOf(err)
	if kind == core.KindInternal {
		s.logger.ErrorContext(ctx, "Ledger operation failed",
			log.FieldOperation, op,
			log.FieldOwnerID, ownerID,
			log.FieldError, err)
	}
	return internal(op, err)
}

// internal wraps errors that carry no kind as Internal; typed errors pass through.
func internal(msg string, err error) error {
	var e *core.Error
	if errors.As(err, &e) {
		return err
	}
	return core.Internal(msg, err)
}
