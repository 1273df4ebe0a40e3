package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

const (
	alice = int64(1)
	bob   = int64(2)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []amqp.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	store    storage.Store
	pub      *recordingPublisher
	ledger   *TransactionService
	accounts *AccountService
	summary  *SummaryService
	verify   *VerifyService
}

func newFixture(store storage.Store) *fixture {
	pub := &recordingPublisher{}
	return &fixture{
		store:    store,
		pub:      pub,
		ledger:   NewTransactionService(store, pub),
		accounts: NewAccountService(store),
		summary:  NewSummaryService(store),
		verify:   NewVerifyService(store),
	}
}

// eachBackend runs fn against the in-memory store and a fresh SQLite file.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newFixture(memory.New()))
	})
	t.Run("sqlite", func(t *testing.T) {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		fn(t, newFixture(repo))
	})
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) account(t *testing.T, owner int64, name, balance string) core.BankAccount {
	t.Helper()
	a, err := f.accounts.CreateAccount(context.Background(), owner, core.NewAccount{Name: name, Balance: amount(balance)})
	require.NoError(t, err)
	return a
}

func (f *fixture) card(t *testing.T, owner int64, name, bill string) core.CreditCard {
	t.Helper()
	c, err := f.accounts.CreateCard(context.Background(), owner, core.NewCard{Name: name, Limit: amount("5000"), CurrentBill: amount(bill)})
	require.NoError(t, err)
	return c
}

func (f *fixture) balance(t *testing.T, owner, id int64) string {
	t.Helper()
	a, err := f.accounts.GetAccount(context.Background(), owner, id)
	require.NoError(t, err)
	return core.FormatAmount(a.Balance)
}

func (f *fixture) bill(t *testing.T, owner, id int64) string {
	t.Helper()
	c, err := f.accounts.GetCard(context.Background(), owner, id)
	require.NoError(t, err)
	return core.FormatAmount(c.CurrentBill)
}

func (f *fixture) requireConsistent(t *testing.T, owner int64) {
	t.Helper()
	report, err := f.verify.VerifyBalances(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, report.OK(), "balance mismatches: %+v", report.Mismatches)
}

func expense(desc, amt string, date core.Date, account, card *int64) core.NewTransaction {
	return core.NewTransaction{
		Description:  desc,
		Amount:       amount(amt),
		Type:         core.Expense,
		Date:         date,
		Category:     "General",
		AccountID:    account,
		CreditCardID: card,
	}
}

func income(desc, amt string, date core.Date, account, card *int64) core.NewTransaction {
	n := expense(desc, amt, date, account, card)
	n.Type = core.Income
	n.Category = "Salary"
	return n
}
