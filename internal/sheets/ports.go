package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionMirror keeps an external copy of the ledger's transactions,
	// one row per transaction keyed by its id.
	TransactionMirror interface {
		Upsert(ctx context.Context, t core.Transaction) error
		Remove(ctx context.Context, id int64) error
	}
)
