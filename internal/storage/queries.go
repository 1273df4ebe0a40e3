package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

const transactionColumns = `id, description, amount, type, date, category, owner_id, account_id, credit_card_id, to_account_id`

const accountColumns = `id, name, balance, opening_balance, currency, owner_id`

const cardColumns = `id, name, credit_limit, current_bill, opening_bill, owner_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                core.Transaction
		typ              string
		acc, card, toAcc sql.NullInt64
	)
	if err := s.Scan(&t.ID, &t.Description, &t.Amount, &typ, &t.Date, &t.Category, &t.OwnerID, &acc, &card, &toAcc); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TxType(typ)
	t.AccountID = idPtr(acc)
	t.CreditCardID = idPtr(card)
	t.ToAccountID = idPtr(toAcc)
	return t, nil
}

func scanAccount(s rowScanner) (core.BankAccount, error) {
	var a core.BankAccount
	err := s.Scan(&a.ID, &a.Name, &a.Balance, &a.OpeningBalance, &a.Currency, &a.OwnerID)
	return a, err
}

func scanCard(s rowScanner) (core.CreditCard, error) {
	var c core.CreditCard
	err := s.Scan(&c.ID, &c.Name, &c.Limit, &c.CurrentBill, &c.OpeningBill, &c.OwnerID)
	return c, err
}

func (q queries) listTransactions(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (q queries) ListTransactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	const op = "storage.sql.ListTransactions"
	return q.listTransactions(ctx, op,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = ? ORDER BY date, id`,
		ownerID)
}

func (q queries) ListTransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error) {
	const op = "storage.sql.ListTransactionsBetween"
	return q.listTransactions(ctx, op,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner_id = ? AND date >= ? AND date < ? ORDER BY date, id`,
		ownerID, from, to)
}

// GetTransaction locks the row when called through a unit of work.
func (q queries) GetTransaction(ctx context.Context, ownerID, id int64) (core.Transaction, error) {
	const op = "storage.sql.GetTransaction"
	row := q.queryRow(ctx,
		q.forUpdate(`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND owner_id = ?`),
		id, ownerID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFoundf("transaction not found")
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (q queries) ListAccounts(ctx context.Context, ownerID int64) ([]core.BankAccount, error) {
	const op = "storage.sql.ListAccounts"
	rows, err := q.query(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.BankAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (q queries) GetAccount(ctx context.Context, ownerID, id int64) (core.BankAccount, error) {
	const op = "storage.sql.GetAccount"
	row := q.queryRow(ctx,
		q.forUpdate(`SELECT `+accountColumns+` FROM bank_accounts WHERE id = ? AND owner_id = ?`),
		id, ownerID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BankAccount{}, core.NotFoundf("account %d not found", id)
	}
	if err != nil {
		return core.BankAccount{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (q queries) ListCards(ctx context.Context, ownerID int64) ([]core.CreditCard, error) {
	const op = "storage.sql.ListCards"
	rows, err := q.query(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []core.CreditCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (q queries) GetCard(ctx context.Context, ownerID, id int64) (core.CreditCard, error) {
	const op = "storage.sql.GetCard"
	row := q.queryRow(ctx,
		q.forUpdate(`SELECT `+cardColumns+` FROM credit_cards WHERE id = ? AND owner_id = ?`),
		id, ownerID)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CreditCard{}, core.NotFoundf("credit card %d not found", id)
	}
	if err != nil {
		return core.CreditCard{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// LockAccounts visits ids one by one in ascending order so that every
// unit of work acquires row locks in the same sequence.
func (q *sqlTxQueries) LockAccounts(ctx context.Context, ownerID int64, ids []int64) (map[int64]core.BankAccount, error) {
	out := make(map[int64]core.BankAccount, len(ids))
	for _, id := range sortedUnique(ids) {
		a, err := q.GetAccount(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (q *sqlTxQueries) LockCards(ctx context.Context, ownerID int64, ids []int64) (map[int64]core.CreditCard, error) {
	out := make(map[int64]core.CreditCard, len(ids))
	for _, id := range sortedUnique(ids) {
		c, err := q.GetCard(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, nil
}

func (q *sqlTxQueries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	const op = "storage.sql.InsertTransaction"
	err := q.queryRow(ctx,
		`INSERT INTO transactions (description, amount, type, date, category, owner_id, account_id, credit_card_id, to_account_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		t.Description, core.FormatAmount(t.Amount), string(t.Type), t.Date, t.Category, t.OwnerID,
		nullID(t.AccountID), nullID(t.CreditCardID), nullID(t.ToAccountID),
	).Scan(&t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (q *sqlTxQueries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	const op = "storage.sql.UpdateTransaction"
	res, err := q.exec(ctx,
		`UPDATE transactions
		 SET description = ?, amount = ?, type = ?, date = ?, category = ?, account_id = ?, credit_card_id = ?, to_account_id = ?
		 WHERE id = ? AND owner_id = ?`,
		t.Description, core.FormatAmount(t.Amount), string(t.Type), t.Date, t.Category,
		nullID(t.AccountID), nullID(t.CreditCardID), nullID(t.ToAccountID),
		t.ID, t.OwnerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("transaction not found"))
}

func (q *sqlTxQueries) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	const op = "storage.sql.DeleteTransaction"
	res, err := q.exec(ctx, `DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("transaction not found"))
}

func (q *sqlTxQueries) SetAccountBalance(ctx context.Context, ownerID, id int64, balance decimal.Decimal) error {
	const op = "storage.sql.SetAccountBalance"
	res, err := q.exec(ctx, `UPDATE bank_accounts SET balance = ? WHERE id = ? AND owner_id = ?`,
		core.FormatAmount(balance), id, ownerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("account %d not found", id))
}

func (q *sqlTxQueries) SetCardBill(ctx context.Context, ownerID, id int64, bill decimal.Decimal) error {
	const op = "storage.sql.SetCardBill"
	res, err := q.exec(ctx, `UPDATE credit_cards SET current_bill = ? WHERE id = ? AND owner_id = ?`,
		core.FormatAmount(bill), id, ownerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("credit card %d not found", id))
}

func (q *sqlTxQueries) InsertAccount(ctx context.Context, a core.BankAccount) (core.BankAccount, error) {
	const op = "storage.sql.InsertAccount"
	err := q.queryRow(ctx,
		`INSERT INTO bank_accounts (name, balance, opening_balance, currency, owner_id) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		a.Name, core.FormatAmount(a.Balance), core.FormatAmount(a.OpeningBalance), a.Currency, a.OwnerID,
	).Scan(&a.ID)
	if err != nil {
		return core.BankAccount{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (q *sqlTxQueries) UpdateAccount(ctx context.Context, a core.BankAccount) error {
	const op = "storage.sql.UpdateAccount"
	res, err := q.exec(ctx, `UPDATE bank_accounts SET name = ?, currency = ? WHERE id = ? AND owner_id = ?`,
		a.Name, a.Currency, a.ID, a.OwnerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("account %d not found", a.ID))
}

func (q *sqlTxQueries) DeleteAccount(ctx context.Context, ownerID, id int64) error {
	const op = "storage.sql.DeleteAccount"
	refs, err := q.CountReferences(ctx, ownerID, core.Target{Kind: core.AccountTarget, ID: id})
	if err != nil {
		return err
	}
	if refs > 0 {
		return core.Conflictf("account %d is still referenced by transactions", id)
	}
	res, err := q.exec(ctx, `DELETE FROM bank_accounts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if isForeignKeyViolation(err) {
		return core.Conflictf("account %d is still referenced by transactions", id)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("account %d not found", id))
}

func (q *sqlTxQueries) InsertCard(ctx context.Context, c core.CreditCard) (core.CreditCard, error) {
	const op = "storage.sql.InsertCard"
	err := q.queryRow(ctx,
		`INSERT INTO credit_cards (name, credit_limit, current_bill, opening_bill, owner_id) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		c.Name, core.FormatAmount(c.Limit), core.FormatAmount(c.CurrentBill), core.FormatAmount(c.OpeningBill), c.OwnerID,
	).Scan(&c.ID)
	if err != nil {
		return core.CreditCard{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (q *sqlTxQueries) UpdateCard(ctx context.Context, c core.CreditCard) error {
	const op = "storage.sql.UpdateCard"
	res, err := q.exec(ctx, `UPDATE credit_cards SET name = ?, credit_limit = ? WHERE id = ? AND owner_id = ?`,
		c.Name, core.FormatAmount(c.Limit), c.ID, c.OwnerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("credit card %d not found", c.ID))
}

func (q *sqlTxQueries) DeleteCard(ctx context.Context, ownerID, id int64) error {
	const op = "storage.sql.DeleteCard"
	refs, err := q.CountReferences(ctx, ownerID, core.Target{Kind: core.CardTarget, ID: id})
	if err != nil {
		return err
	}
	if refs > 0 {
		return core.Conflictf("credit card %d is still referenced by transactions", id)
	}
	res, err := q.exec(ctx, `DELETE FROM credit_cards WHERE id = ? AND owner_id = ?`, id, ownerID)
	if isForeignKeyViolation(err) {
		return core.Conflictf("credit card %d is still referenced by transactions", id)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectOne(res, op, core.NotFoundf("credit card %d not found", id))
}

func (q *sqlTxQueries) CountReferences(ctx context.Context, ownerID int64, target core.Target) (int, error) {
	const op = "storage.sql.CountReferences"
	var query string
	var args []any
	switch target.Kind {
	case core.AccountTarget:
		query = `SELECT COUNT(*) FROM transactions WHERE owner_id = ? AND (account_id = ? OR to_account_id = ?)`
		args = []any{ownerID, target.ID, target.ID}
	case core.CardTarget:
		query = `SELECT COUNT(*) FROM transactions WHERE owner_id = ? AND credit_card_id = ?`
		args = []any{ownerID, target.ID}
	default:
		return 0, fmt.Errorf("%s: unknown target kind %q", op, target.Kind)
	}
	var n int
	if err := q.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (q *sqlTxQueries) PurgeOwner(ctx context.Context, ownerID int64) error {
	const op = "storage.sql.PurgeOwner"
	for _, stmt := range []string{
		`DELETE FROM transactions WHERE owner_id = ?`,
		`DELETE FROM credit_cards WHERE owner_id = ?`,
		`DELETE FROM bank_accounts WHERE owner_id = ?`,
	} {
		if _, err := q.exec(ctx, stmt, ownerID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
