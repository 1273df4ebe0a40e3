package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income   TxType = "income"
	Expense  TxType = "expense"
	Transfer TxType = "transfer"
)

// TransferCategory is the category every transfer carries, whatever the caller sent.
const TransferCategory = "Transfer"

const (
	DefaultCurrency      = "BRL"
	maxDescriptionLength = 200
	maxCategoryLength    = 50
	maxNameLength        = 100
)

const dateLayout = "2006-01-02"

type (
	TxType string

	// Date is a calendar date with no time component, kept at UTC midnight.
	Date struct {
		time.Time
	}

	BankAccount struct {
		ID             int64           `json:"id"`
		Name           string          `json:"name"`
		Balance        decimal.Decimal `json:"balance"`
		OpeningBalance decimal.Decimal `json:"opening_balance"`
		Currency       string          `json:"currency"`
		OwnerID        int64           `json:"owner_id"`
	}

	// CreditCard mirrors BankAccount with an inverted sign convention:
	// expenses grow CurrentBill, refunds shrink it. Limit is informational only.
	CreditCard struct {
		ID          int64           `json:"id"`
		Name        string          `json:"name"`
		Limit       decimal.Decimal `json:"limit"`
		CurrentBill decimal.Decimal `json:"current_bill"`
		OpeningBill decimal.Decimal `json:"opening_bill"`
		OwnerID     int64           `json:"owner_id"`
	}

	Transaction struct {
		ID           int64           `json:"id"`
		Description  string          `json:"description"`
		Amount       decimal.Decimal `json:"amount"`
		Type         TxType          `json:"type"`
		Date         Date            `json:"date"`
		Category     string          `json:"category"`
		OwnerID      int64           `json:"owner_id"`
		AccountID    *int64          `json:"account_id"`
		CreditCardID *int64          `json:"credit_card_id"`
		ToAccountID  *int64          `json:"to_account_id"`
	}
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	default:
		return false
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, Validationf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// In reports whether the date falls in the given calendar month.
func (d Date) In(year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return Validationf("date must be a string in YYYY-MM-DD format")
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer. Dates are stored as ISO strings so that
// lexical and chronological order agree in every backend.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner for DATE and TEXT columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), int(v.Month()), v.Day())
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*d = Date{Time: t}
	return nil
}

// Validate checks field constraints and the reference shape of the transaction.
// Ownership of the referenced accounts is checked by the engine, not here.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLength {
		return Validationf("description too long (max %d characters)", maxDescriptionLength)
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(t.Category) > maxCategoryLength {
		return Validationf("category too long (max %d characters)", maxCategoryLength)
	}
	return t.ValidateTargets()
}

// ValidateTargets enforces the account/card/to-account combination for the type.
func (t Transaction) ValidateTargets() error {
	if t.Type == Transfer {
		if t.AccountID == nil || t.ToAccountID == nil || t.CreditCardID != nil {
			return ErrTransferShape
		}
		if *t.AccountID == *t.ToAccountID {
			return ErrSameAccount
		}
		return nil
	}
	if t.ToAccountID != nil {
		return ErrToAccountNotAllowed
	}
	if (t.AccountID == nil) == (t.CreditCardID == nil) {
		return ErrTargetExclusive
	}
	return nil
}

// Clone returns a deep copy; the id pointers are not shared.
func (t Transaction) Clone() Transaction {
	c := t
	c.AccountID = cloneID(t.AccountID)
	c.CreditCardID = cloneID(t.CreditCardID)
	c.ToAccountID = cloneID(t.ToAccountID)
	return c
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// ID returns a pointer to a copy of id, handy for optional references.
func ID(id int64) *int64 {
	return &id
}

func (a BankAccount) Validate() error {
	if err := validateName(a.Name); err != nil {
		return err
	}
	if len(a.Currency) != 3 {
		return Validationf("currency must be a 3-letter code")
	}
	if !AmountInRange(a.OpeningBalance) {
		return ErrAmountOutOfRange
	}
	if a.OpeningBalance.IsNegative() {
		return Validationf("balance cannot be negative")
	}
	return nil
}

func (c CreditCard) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	if !AmountInRange(c.Limit) || !AmountInRange(c.OpeningBill) {
		return ErrAmountOutOfRange
	}
	if !c.Limit.IsPositive() {
		return Validationf("limit must be greater than zero")
	}
	if c.OpeningBill.IsNegative() {
		return Validationf("current bill cannot be negative")
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return Validationf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return Validationf("name too long (max %d characters)", maxNameLength)
	}
	return nil
}
