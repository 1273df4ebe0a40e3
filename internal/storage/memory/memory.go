// Package memory is an in-process ledger store. A unit of work runs against
// a private copy of the state, which replaces the shared state only on
// commit; units of work are serialized by a single mutex.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

type state struct {
	accounts     map[int64]core.BankAccount
	cards        map[int64]core.CreditCard
	transactions map[int64]core.Transaction
	seq          map[string]int64
}

func newState() *state {
	return &state{
		accounts:     map[int64]core.BankAccount{},
		cards:        map[int64]core.CreditCard{},
		transactions: map[int64]core.Transaction{},
		seq:          map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.accounts {
		c.accounts[id] = a
	}
	for id, cc := range s.cards {
		c.cards[id] = cc
	}
	for id, t := range s.transactions {
		c.transactions[id] = t.Clone()
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return core.Internal("begin unit of work", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listTransactions(ownerID, core.Date{}, core.Date{}), nil
}

func (s *Store) ListTransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listTransactions(ownerID, from, to), nil
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getTransaction(ownerID, id)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID int64) ([]core.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listAccounts(ownerID), nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID, id int64) (core.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getAccount(ownerID, id)
}

func (s *Store) ListCards(ctx context.Context, ownerID int64) ([]core.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listCards(ownerID), nil
}

func (s *Store) GetCard(ctx context.Context, ownerID, id int64) (core.CreditCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getCard(ownerID, id)
}

// listTransactions filters by owner and, when from is set, by [from, to).
func (s *state) listTransactions(ownerID int64, from, to core.Date) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID != ownerID {
			continue
		}
		if !from.IsZero() && (t.Date.Before(from.Time) || !t.Date.Before(to.Time)) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) getTransaction(ownerID, id int64) (core.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, core.NotFoundf("transaction not found")
	}
	return t.Clone(), nil
}

func (s *state) listAccounts(ownerID int64) []core.BankAccount {
	var out []core.BankAccount
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) getAccount(ownerID, id int64) (core.BankAccount, error) {
	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return core.BankAccount{}, core.NotFoundf("account %d not found", id)
	}
	return a, nil
}

func (s *state) listCards(ownerID int64) []core.CreditCard {
	var out []core.CreditCard
	for _, c := range s.cards {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) getCard(ownerID, id int64) (core.CreditCard, error) {
	c, ok := s.cards[id]
	if !ok || c.OwnerID != ownerID {
		return core.CreditCard{}, core.NotFoundf("credit card %d not found", id)
	}
	return c, nil
}

// tx is a unit of work over a private copy of the state.
type tx struct {
	st *state
}

func (t *tx) ListTransactions(_ context.Context, ownerID int64) ([]core.Transaction, error) {
	return t.st.listTransactions(ownerID, core.Date{}, core.Date{}), nil
}

func (t *tx) ListTransactionsBetween(_ context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error) {
	return t.st.listTransactions(ownerID, from, to), nil
}

func (t *tx) GetTransaction(_ context.Context, ownerID, id int64) (core.Transaction, error) {
	return t.st.getTransaction(ownerID, id)
}

func (t *tx) ListAccounts(_ context.Context, ownerID int64) ([]core.BankAccount, error) {
	return t.st.listAccounts(ownerID), nil
}

func (t *tx) GetAccount(_ context.Context, ownerID, id int64) (core.BankAccount, error) {
	return t.st.getAccount(ownerID, id)
}

func (t *tx) ListCards(_ context.Context, ownerID int64) ([]core.CreditCard, error) {
	return t.st.listCards(ownerID), nil
}

func (t *tx) GetCard(_ context.Context, ownerID, id int64) (core.CreditCard, error) {
	return t.st.getCard(ownerID, id)
}

func (t *tx) LockAccounts(_ context.Context, ownerID int64, ids []int64) (map[int64]core.BankAccount, error) {
	out := make(map[int64]core.BankAccount, len(ids))
	for _, id := range ids {
		a, err := t.st.getAccount(ownerID, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (t *tx) LockCards(_ context.Context, ownerID int64, ids []int64) (map[int64]core.CreditCard, error) {
	out := make(map[int64]core.CreditCard, len(ids))
	for _, id := range ids {
		c, err := t.st.getCard(ownerID, id)
		if err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, nil
}

func (t *tx) InsertTransaction(_ context.Context, tr core.Transaction) (core.Transaction, error) {
	tr = tr.Clone()
	tr.ID = t.st.next("transactions")
	t.st.transactions[tr.ID] = tr
	return tr.Clone(), nil
}

func (t *tx) UpdateTransaction(_ context.Context, tr core.Transaction) error {
	if _, err := t.st.getTransaction(tr.OwnerID, tr.ID); err != nil {
		return err
	}
	t.st.transactions[tr.ID] = tr.Clone()
	return nil
}

func (t *tx) DeleteTransaction(_ context.Context, ownerID, id int64) error {
	if _, err := t.st.getTransaction(ownerID, id); err != nil {
		return err
	}
	delete(t.st.transactions, id)
	return nil
}

func (t *tx) SetAccountBalance(_ context.Context, ownerID, id int64, balance decimal.Decimal) error {
	a, err := t.st.getAccount(ownerID, id)
	if err != nil {
		return err
	}
	a.Balance = balance
	t.st.accounts[id] = a
	return nil
}

func (t *tx) SetCardBill(_ context.Context, ownerID, id int64, bill decimal.Decimal) error {
	c, err := t.st.getCard(ownerID, id)
	if err != nil {
		return err
	}
	c.CurrentBill = bill
	t.st.cards[id] = c
	return nil
}

func (t *tx) InsertAccount(_ context.Context, a core.BankAccount) (core.BankAccount, error) {
	a.ID = t.st.next("bank_accounts")
	t.st.accounts[a.ID] = a
	return a, nil
}

// UpdateAccount keeps the stored balances; only descriptive fields change.
func (t *tx) UpdateAccount(_ context.Context, a core.BankAccount) error {
	cur, err := t.st.getAccount(a.OwnerID, a.ID)
	if err != nil {
		return err
	}
	cur.Name = a.Name
	cur.Currency = a.Currency
	t.st.accounts[a.ID] = cur
	return nil
}

func (t *tx) DeleteAccount(_ context.Context, ownerID, id int64) error {
	if _, err := t.st.getAccount(ownerID, id); err != nil {
		return err
	}
	if t.st.references(core.Target{Kind: core.AccountTarget, ID: id}) > 0 {
		return core.Conflictf("account %d is still referenced by transactions", id)
	}
	delete(t.st.accounts, id)
	return nil
}

func (t *tx) InsertCard(_ context.Context, c core.CreditCard) (core.CreditCard, error) {
	c.ID = t.st.next("credit_cards")
	t.st.cards[c.ID] = c
	return c, nil
}

func (t *tx) UpdateCard(_ context.Context, c core.CreditCard) error {
	cur, err := t.st.getCard(c.OwnerID, c.ID)
	if err != nil {
		return err
	}
	cur.Name = c.Name
	cur.Limit = c.Limit
	t.st.cards[c.ID] = cur
	return nil
}

func (t *tx) DeleteCard(_ context.Context, ownerID, id int64) error {
	if _, err := t.st.getCard(ownerID, id); err != nil {
		return err
	}
	if t.st.references(core.Target{Kind: core.CardTarget, ID: id}) > 0 {
		return core.Conflictf("credit card %d is still referenced by transactions", id)
	}
	delete(t.st.cards, id)
	return nil
}

func (t *tx) CountReferences(_ context.Context, ownerID int64, target core.Target) (int, error) {
	switch target.Kind {
	case core.AccountTarget, core.CardTarget:
	default:
		return 0, fmt.Errorf("memory.CountReferences: unknown target kind %q", target.Kind)
	}
	n := 0
	for _, tr := range t.st.transactions {
		if tr.OwnerID == ownerID && slices.Contains(tr.Targets(), target) {
			n++
		}
	}
	return n, nil
}

func (s *state) references(target core.Target) int {
	n := 0
	for _, tr := range s.transactions {
		if slices.Contains(tr.Targets(), target) {
			n++
		}
	}
	return n
}

func (t *tx) PurgeOwner(_ context.Context, ownerID int64) error {
	for id, tr := range t.st.transactions {
		if tr.OwnerID == ownerID {
			delete(t.st.transactions, id)
		}
	}
	for id, c := range t.st.cards {
		if c.OwnerID == ownerID {
			delete(t.st.cards, id)
		}
	}
	for id, a := range t.st.accounts {
		if a.OwnerID == ownerID {
			delete(t.st.accounts, id)
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
