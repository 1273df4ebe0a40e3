package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// NewTransaction carries the fields of a transaction to create.
type NewTransaction struct {
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Type         TxType          `json:"type"`
	Date         Date            `json:"date"`
	Category     string          `json:"category"`
	AccountID    *int64          `json:"account_id"`
	CreditCardID *int64          `json:"credit_card_id"`
	ToAccountID  *int64          `json:"to_account_id"`
}

// Transaction builds the unsaved transaction for owner. Amounts are rounded
// and transfers get the fixed category.
func (n NewTransaction) Transaction(ownerID int64) Transaction {
	t := Transaction{
		Description:  strings.TrimSpace(n.Description),
		Amount:       RoundAmount(n.Amount),
		Type:         n.Type,
		Date:         n.Date,
		Category:     strings.TrimSpace(n.Category),
		OwnerID:      ownerID,
		AccountID:    cloneID(n.AccountID),
		CreditCardID: cloneID(n.CreditCardID),
		ToAccountID:  cloneID(n.ToAccountID),
	}
	if t.Type == Transfer {
		t.Category = TransferCategory
	}
	return t
}

// NewTransfer carries the fields of a transfer between two accounts.
type NewTransfer struct {
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Date          Date            `json:"date"`
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
}

func (n NewTransfer) Transaction(ownerID int64) Transaction {
	return Transaction{
		Description: strings.TrimSpace(n.Description),
		Amount:      RoundAmount(n.Amount),
		Type:        Transfer,
		Date:        n.Date,
		Category:    TransferCategory,
		OwnerID:     ownerID,
		AccountID:   ID(n.FromAccountID),
		ToAccountID: ID(n.ToAccountID),
	}
}

// NullableID is an optional reference in a partial update. Set reports
// whether the field was present at all; Valid whether it holds an id
// rather than an explicit null.
type NullableID struct {
	Set   bool
	Valid bool
	Value int64
}

// SetID returns a NullableID holding id.
func SetID(id int64) NullableID {
	return NullableID{Set: true, Valid: true, Value: id}
}

// ClearID returns a NullableID that nulls the reference.
func ClearID() NullableID {
	return NullableID{Set: true}
}

func (n *NullableID) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Valid = false
		n.Value = 0
		return nil
	}
	if err := json.Unmarshal(b, &n.Value); err != nil {
		return Validationf("invalid id reference")
	}
	n.Valid = true
	return nil
}

func (n NullableID) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n NullableID) apply(dst **int64) {
	if !n.Set {
		return
	}
	if !n.Valid {
		*dst = nil
		return
	}
	*dst = ID(n.Value)
}

// TransactionPatch holds the fields of a partial update. Nil pointers and
// unset NullableIDs leave the stored value untouched.
type TransactionPatch struct {
	Description  *string          `json:"description"`
	Amount       *decimal.Decimal `json:"amount"`
	Type         *TxType          `json:"type"`
	Date         *Date            `json:"date"`
	Category     *string          `json:"category"`
	AccountID    NullableID       `json:"account_id"`
	CreditCardID NullableID       `json:"credit_card_id"`
	ToAccountID  NullableID       `json:"to_account_id"`
}

// Apply returns a copy of t with the patch applied. The result is not validated.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	out := t.Clone()
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		out.Amount = RoundAmount(*p.Amount)
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.Category != nil {
		out.Category = strings.TrimSpace(*p.Category)
	}
	p.AccountID.apply(&out.AccountID)
	p.CreditCardID.apply(&out.CreditCardID)
	p.ToAccountID.apply(&out.ToAccountID)
	if out.Type == Transfer {
		out.Category = TransferCategory
	}
	return out
}

// NewAccount carries the fields of a bank account to open.
type NewAccount struct {
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

func (n NewAccount) Account(ownerID int64) BankAccount {
	currency := strings.ToUpper(strings.TrimSpace(n.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	opening := RoundAmount(n.Balance)
	return BankAccount{
		Name:           strings.TrimSpace(n.Name),
		Balance:        opening,
		OpeningBalance: opening,
		Currency:       currency,
		OwnerID:        ownerID,
	}
}

// AccountPatch only reaches descriptive fields. Balances move through transactions.
type AccountPatch struct {
	Name     *string `json:"name"`
	Currency *string `json:"currency"`
}

func (p AccountPatch) Apply(a BankAccount) BankAccount {
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Currency != nil {
		a.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	return a
}

type NewCard struct {
	Name        string          `json:"name"`
	Limit       decimal.Decimal `json:"limit"`
	CurrentBill decimal.Decimal `json:"current_bill"`
}

func (n NewCard) Card(ownerID int64) CreditCard {
	opening := RoundAmount(n.CurrentBill)
	return CreditCard{
		Name:        strings.TrimSpace(n.Name),
		Limit:       RoundAmount(n.Limit),
		CurrentBill: opening,
		OpeningBill: opening,
		OwnerID:     ownerID,
	}
}

type CardPatch struct {
	Name  *string          `json:"name"`
	Limit *decimal.Decimal `json:"limit"`
}

func (p CardPatch) Apply(c CreditCard) CreditCard {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Limit != nil {
		c.Limit = RoundAmount(*p.Limit)
	}
	return c
}
