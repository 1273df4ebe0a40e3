package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEffectTable(t *testing.T) {
	a := decimal.RequireFromString("12.34")
	cases := []struct {
		kind TargetKind
		typ  TxType
		want string
	}{
		{AccountTarget, Income, "12.34"},
		{AccountTarget, Expense, "-12.34"},
		{CardTarget, Expense, "12.34"},
		{CardTarget, Income, "-12.34"},
	}
	for _, tc := range cases {
		got, err := Effect(tc.kind, tc.typ, a)
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.kind, tc.typ, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s/%s: expected %s, got %s", tc.kind, tc.typ, tc.want, got)
		}
		if rev, err := Revert(tc.kind, tc.typ, a); err != nil || !rev.Equal(got.Neg()) {
			t.Fatalf("%s/%s: revert is not the inverse", tc.kind, tc.typ)
		}
	}
}

func TestEffectRejectsTransfer(t *testing.T) {
	for _, kind := range []TargetKind{AccountTarget, CardTarget} {
		if _, err := Effect(kind, Transfer, decimal.NewFromInt(1)); !IsKind(err, KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", kind, err)
		}
		if _, err := Revert(kind, Transfer, decimal.NewFromInt(1)); err == nil {
			t.Fatalf("%s: expected revert error", kind)
		}
	}
	if _, err := Effect(AccountTarget, TxType("refund"), decimal.NewFromInt(1)); err == nil {
		t.Fatalf("expected error for unknown type")
	}

	odd := Transaction{Type: TxType("refund"), Amount: decimal.NewFromInt(1), AccountID: ID(1)}
	if eff := odd.Effects(); len(eff) != 0 {
		t.Fatalf("expected no postings, got %v", eff)
	}
}

func mustEffect(t *testing.T, kind TargetKind, typ TxType, a decimal.Decimal) decimal.Decimal {
	t.Helper()
	d, err := Effect(kind, typ, a)
	if err != nil {
		t.Fatalf("%s/%s: %v", kind, typ, err)
	}
	return d
}

func TestApplyRevertCyclesDoNotDrift(t *testing.T) {
	start := decimal.RequireFromString("1000.00")
	amounts := []string{"0.01", "0.10", "0.30", "33.33", "99.99"}
	bal := start
	for i := 0; i < 1000; i++ {
		a := decimal.RequireFromString(amounts[i%len(amounts)])
		for _, kind := range []TargetKind{AccountTarget, CardTarget} {
			for _, typ := range []TxType{Income, Expense} {
				bal = bal.Add(mustEffect(t, kind, typ, a))
				bal = bal.Sub(mustEffect(t, kind, typ, a))
			}
		}
	}
	if !bal.Equal(start) {
		t.Fatalf("drift after cycles: %s", bal)
	}
}

func TestTransferEffectsConserve(t *testing.T) {
	tx := Transaction{
		Type:        Transfer,
		Amount:      decimal.RequireFromString("300.00"),
		AccountID:   ID(2),
		ToAccountID: ID(1),
	}
	eff := tx.Effects()
	if len(eff) != 2 {
		t.Fatalf("expected two legs, got %d", len(eff))
	}
	net := Net(eff)
	if !net[Target{AccountTarget, 2}].Equal(decimal.RequireFromString("-300")) {
		t.Fatalf("source leg wrong: %s", net[Target{AccountTarget, 2}])
	}
	if !net[Target{AccountTarget, 1}].Equal(decimal.RequireFromString("300")) {
		t.Fatalf("destination leg wrong: %s", net[Target{AccountTarget, 1}])
	}
	sum := decimal.Zero
	for _, d := range net {
		sum = sum.Add(d)
	}
	if !sum.IsZero() {
		t.Fatalf("transfer must conserve, net %s", sum)
	}

	back := Net(eff, tx.Reverts())
	for target, d := range back {
		if !d.IsZero() {
			t.Fatalf("%s: effect+revert should cancel, got %s", target, d)
		}
	}
}

func TestNetAcrossTargetChange(t *testing.T) {
	old := Transaction{Type: Expense, Amount: decimal.NewFromInt(100), AccountID: ID(1)}
	updated := Transaction{Type: Expense, Amount: decimal.NewFromInt(40), CreditCardID: ID(5)}

	net := Net(old.Reverts(), updated.Effects())
	if !net[Target{AccountTarget, 1}].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("old account should get revert, got %s", net[Target{AccountTarget, 1}])
	}
	if !net[Target{CardTarget, 5}].Equal(decimal.NewFromInt(40)) {
		t.Fatalf("new card should get effect, got %s", net[Target{CardTarget, 5}])
	}
}

func TestSplitTargetsOrdersAndDedupes(t *testing.T) {
	ts := []Target{
		{CardTarget, 9}, {AccountTarget, 7}, {CardTarget, 2},
		{AccountTarget, 3}, {AccountTarget, 7},
	}
	accounts, cards := SplitTargets(ts)
	if len(accounts) != 2 || accounts[0] != 3 || accounts[1] != 7 {
		t.Fatalf("accounts: %v", accounts)
	}
	if len(cards) != 2 || cards[0] != 2 || cards[1] != 9 {
		t.Fatalf("cards: %v", cards)
	}
}
