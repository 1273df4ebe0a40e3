package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// TargetKind tells which kind of balance a transaction moves.
type TargetKind string

const (
	AccountTarget TargetKind = "account"
	CardTarget    TargetKind = "card"
)

// Direction is the accounting side of an effect on a target.
type Direction int

const (
	Credit Direction = iota + 1
	Debit
)

func (d Direction) String() string {
	switch d {
	case Credit:
		return "credit"
	case Debit:
		return "debit"
	default:
		return "unknown"
	}
}

// Target identifies one balance: a bank account or a credit card bill.
type Target struct {
	Kind TargetKind
	ID   int64
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

// Posting is one signed delta a transaction contributes to a target.
type Posting struct {
	Target Target
	Delta  decimal.Decimal
}

type directionKey struct {
	kind TargetKind
	tx   TxType
}

// directions covers income and expense. Transfers are two-legged and
// resolved in Transaction.Effects: the source leg is a Debit, the
// destination leg a Credit.
var directions = map[directionKey]Direction{
	{AccountTarget, Income}:  Credit,
	{AccountTarget, Expense}: Debit,
	{CardTarget, Expense}:    Credit,
	{CardTarget, Income}:     Debit,
}

// Credit increases the stored value of either target: the balance of an
// account, the bill of a card.
var signs = map[TargetKind]map[Direction]int64{
	AccountTarget: {Credit: 1, Debit: -1},
	CardTarget:    {Credit: 1, Debit: -1},
}

// DirectionOf looks up the direction for a target kind and transaction type.
func DirectionOf(kind TargetKind, typ TxType) (Direction, bool) {
	d, ok := directions[directionKey{kind, typ}]
	return d, ok
}

// Signed returns amount with the sign the direction carries on kind.
func Signed(kind TargetKind, dir Direction, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(signs[kind][dir]))
}

// Effect returns the signed delta a single-target transaction of typ applies
// to a target of kind:
//
//	account: income +a, expense -a
//	card:    expense +a, income -a
//
// Transfers have no single-target effect and yield a validation error.
func Effect(kind TargetKind, typ TxType, amount decimal.Decimal) (decimal.Decimal, error) {
	dir, ok := DirectionOf(kind, typ)
	if !ok {
		return decimal.Zero, Validationf("%s has no single-target effect on %s", typ, kind)
	}
	return Signed(kind, dir, amount), nil
}

// Revert is the additive inverse of Effect.
func Revert(kind TargetKind, typ TxType, amount decimal.Decimal) (decimal.Decimal, error) {
	d, err := Effect(kind, typ, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Neg(), nil
}

// Targets lists the balances the transaction touches, accounts before cards,
// ascending by id within each kind.
func (t Transaction) Targets() []Target {
	var out []Target
	if t.AccountID != nil {
		out = append(out, Target{Kind: AccountTarget, ID: *t.AccountID})
	}
	if t.ToAccountID != nil {
		out = append(out, Target{Kind: AccountTarget, ID: *t.ToAccountID})
	}
	if t.CreditCardID != nil {
		out = append(out, Target{Kind: CardTarget, ID: *t.CreditCardID})
	}
	SortTargets(out)
	return out
}

// Effects returns every posting the transaction applies. The transaction is
// assumed valid; one without a resolvable target or type yields none.
func (t Transaction) Effects() []Posting {
	switch {
	case t.Type == Transfer:
		if t.AccountID == nil || t.ToAccountID == nil {
			return nil
		}
		return []Posting{
			{Target{AccountTarget, *t.AccountID}, Signed(AccountTarget, Debit, t.Amount)},
			{Target{AccountTarget, *t.ToAccountID}, Signed(AccountTarget, Credit, t.Amount)},
		}
	case t.AccountID != nil:
		return t.posting(Target{AccountTarget, *t.AccountID})
	case t.CreditCardID != nil:
		return t.posting(Target{CardTarget, *t.CreditCardID})
	default:
		return nil
	}
}

func (t Transaction) posting(target Target) []Posting {
	delta, err := Effect(target.Kind, t.Type, t.Amount)
	if err != nil {
		return nil
	}
	return []Posting{{target, delta}}
}

// Reverts returns the negation of Effects.
func (t Transaction) Reverts() []Posting {
	eff := t.Effects()
	out := make([]Posting, len(eff))
	for i, p := range eff {
		out[i] = Posting{Target: p.Target, Delta: p.Delta.Neg()}
	}
	return out
}

// Net folds postings into one delta per target. Targets whose deltas cancel
// out are kept with a zero delta; callers still lock them.
func Net(postings ...[]Posting) map[Target]decimal.Decimal {
	out := make(map[Target]decimal.Decimal)
	for _, ps := range postings {
		for _, p := range ps {
			out[p.Target] = out[p.Target].Add(p.Delta)
		}
	}
	return out
}

// SortTargets orders targets accounts first, then cards, each ascending by id.
// This is the lock order every unit of work follows.
func SortTargets(ts []Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Kind != ts[j].Kind {
			return ts[i].Kind == AccountTarget
		}
		return ts[i].ID < ts[j].ID
	})
}

// SplitTargets returns the distinct account and card ids, each ascending.
func SplitTargets(ts []Target) (accounts, cards []int64) {
	seen := make(map[Target]bool, len(ts))
	sorted := append([]Target(nil), ts...)
	SortTargets(sorted)
	for _, t := range sorted {
		if seen[t] {
			continue
		}
		seen[t] = true
		switch t.Kind {
		case AccountTarget:
			accounts = append(accounts, t.ID)
		case CardTarget:
			cards = append(cards, t.ID)
		}
	}
	return accounts, cards
}
