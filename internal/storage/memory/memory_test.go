package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/storage"
)

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var acc core.BankAccount
	require.NoError(t, s.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		acc, err = tx.InsertAccount(ctx, core.NewAccount{Name: "A", Balance: decimal.NewFromInt(10)}.Account(1))
		if err != nil {
			return err
		}
		return tx.SetAccountBalance(ctx, 1, acc.ID, decimal.NewFromInt(7))
	}))

	got, err := s.GetAccount(ctx, 1, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(7)))
	assert.True(t, got.OpeningBalance.Equal(decimal.NewFromInt(10)))
}

func TestWithinTxDiscardsOnErrorAndPanic(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		_, _ = tx.InsertAccount(ctx, core.NewAccount{Name: "A"}.Account(1))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(tx storage.Tx) error {
			_, _ = tx.InsertAccount(ctx, core.NewAccount{Name: "B"}.Account(1))
			panic("fail")
		})
	})

	accounts, err := s.ListAccounts(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	// The mutex is released after a panic.
	require.NoError(t, s.WithinTx(ctx, func(tx storage.Tx) error { return nil }))
}

func TestOwnerScopingAndReferences(t *testing.T) {
	ctx := context.Background()
	s := New()

	var card core.CreditCard
	require.NoError(t, s.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		card, err = tx.InsertCard(ctx, core.NewCard{Name: "Visa", Limit: decimal.NewFromInt(100)}.Card(1))
		if err != nil {
			return err
		}
		_, err = tx.InsertTransaction(ctx, core.Transaction{
			Description: "coffee", Amount: decimal.NewFromInt(3), Type: core.Expense,
			Date: core.NewDate(2024, 5, 2), Category: "Food", OwnerID: 1, CreditCardID: core.ID(card.ID),
		})
		return err
	}))

	_, err := s.GetCard(ctx, 2, card.ID)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LockCards(ctx, 2, []int64{card.ID})
		return err
	})
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	err = s.WithinTx(ctx, func(tx storage.Tx) error { return tx.DeleteCard(ctx, 1, card.ID) })
	assert.Equal(t, core.KindConflict, core.KindOf(err))

	from, to := core.MonthRange(5, 2024)
	txs, err := s.ListTransactionsBetween(ctx, 1, from, to)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	txs, err = s.ListTransactionsBetween(ctx, 2, from, to)
	require.NoError(t, err)
	assert.Empty(t, txs)
}
