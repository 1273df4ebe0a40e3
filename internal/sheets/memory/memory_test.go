package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func sample(id int64, desc string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Description: desc,
		Amount:      decimal.RequireFromString("10.00"),
		Type:        core.Expense,
		Date:        core.NewDate(2024, 5, 1),
		Category:    "Food",
		OwnerID:     1,
		AccountID:   core.ID(1),
	}
}

func TestMirrorUpsertReplacesAndRemove(t *testing.T) {
	ctx := context.Background()
	m := New()

	if err := m.Upsert(ctx, sample(2, "lunch")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := m.Upsert(ctx, sample(1, "coffee")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := m.Upsert(ctx, sample(2, "dinner")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows := m.Rows()
	if len(rows) != 2 || rows[0].ID != 1 || rows[1].Description != "dinner" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	if err := m.Remove(ctx, 2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.Remove(ctx, 99); err != nil {
		t.Fatalf("removing a missing row should be a no-op: %v", err)
	}
	if _, ok := m.Get(2); ok {
		t.Fatal("row 2 should be gone")
	}
}

func TestMirrorRejectsInvalidRows(t *testing.T) {
	bad := sample(1, "")
	if err := New().Upsert(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMirrorReturnsCopies(t *testing.T) {
	m := New()
	_ = m.Upsert(context.Background(), sample(1, "x"))
	got, _ := m.Get(1)
	*got.AccountID = 42
	again, _ := m.Get(1)
	if *again.AccountID != 1 {
		t.Fatal("mirror state leaked through a returned pointer")
	}
}
