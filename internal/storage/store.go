// Package storage holds the ledger store: the durable home of accounts,
// cards and transactions, and the unit of work every balance change runs in.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Reader is the point-in-time read surface. Every lookup is scoped to an
// owner; an entity owned by someone else is reported as not found.
type Reader interface {
	ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error)
	// ListTransactionsBetween returns transactions dated in [from, to).
	ListTransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error)
	ListAccounts(ctx context.Context, ownerID int64) ([]core.BankAccount, error)
	GetAccount(ctx context.Context, ownerID, id int64) (core.BankAccount, error)
	ListCards(ctx context.Context, ownerID int64) ([]core.CreditCard, error)
	GetCard(ctx context.Context, ownerID, id int64) (core.CreditCard, error)
}

// Tx is one unit of work. Reads through a Tx see its own writes; on SQL
// backends GetTransaction and the Lock methods hold row locks until the
// unit of work ends.
//
// Callers lock in a fixed order to avoid deadlocks: the transaction row
// first, then accounts ascending by id, then cards ascending by id.
type Tx interface {
	Reader

	// LockAccounts locks the given accounts in ascending id order and
	// returns them by id. Any id that is absent or foreign yields NotFound.
	LockAccounts(ctx context.Context, ownerID int64, ids []int64) (map[int64]core.BankAccount, error)
	LockCards(ctx context.Context, ownerID int64, ids []int64) (map[int64]core.CreditCard, error)

	InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id int64) error

	SetAccountBalance(ctx context.Context, ownerID, id int64, balance decimal.Decimal) error
	SetCardBill(ctx context.Context, ownerID, id int64, bill decimal.Decimal) error

	InsertAccount(ctx context.Context, a core.BankAccount) (core.BankAccount, error)
	UpdateAccount(ctx context.Context, a core.BankAccount) error
	DeleteAccount(ctx context.Context, ownerID, id int64) error
	InsertCard(ctx context.Context, c core.CreditCard) (core.CreditCard, error)
	UpdateCard(ctx context.Context, c core.CreditCard) error
	DeleteCard(ctx context.Context, ownerID, id int64) error

	// CountReferences counts transactions whose effect lands on target.
	CountReferences(ctx context.Context, ownerID int64, target core.Target) (int, error)
	// PurgeOwner removes every transaction, card and account of the owner.
	PurgeOwner(ctx context.Context, ownerID int64) error
}

// Store is the ledger store.
//
// WithinTx begins a unit of work, runs fn and commits exactly once when fn
// returns nil. When fn returns an error or panics, everything fn wrote is
// discarded. The unit of work is always released before WithinTx returns.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
