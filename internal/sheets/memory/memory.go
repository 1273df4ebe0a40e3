package memory

import (
	"context"
	"sort"
	"sync"

	"ledger/internal/core"
	"ledger/internal/sheets"
)

var _ sheets.TransactionMirror = (*Mirror)(nil)

// Mirror is an in-process TransactionMirror used when no spreadsheet is
// configured and in tests.
type Mirror struct {
	mu   sync.Mutex
	rows map[int64]core.Transaction
}

func New() *Mirror {
	return &Mirror{rows: make(map[int64]core.Transaction)}
}

// Upsert stores a copy of t, replacing any row with the same id.
func (m *Mirror) Upsert(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[t.ID] = t.Clone()
	return nil
}

// Remove deletes the row for id. Missing rows are not an error.
func (m *Mirror) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// Get returns the mirrored row for id.
func (m *Mirror) Get(id int64) (core.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return core.Transaction{}, false
	}
	return t.Clone(), true
}

// Rows returns all mirrored rows ordered by id.
func (m *Mirror) Rows() []core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Transaction, 0, len(m.rows))
	for _, t := range m.rows {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
