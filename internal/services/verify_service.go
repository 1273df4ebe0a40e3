package services

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// Mismatch is a stored balance that disagrees with its transactions.
type Mismatch struct {
	Kind     core.TargetKind `json:"kind"`
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

type VerifyReport struct {
	OwnerID      int64      `json:"owner_id"`
	Accounts     int        `json:"accounts"`
	Cards        int        `json:"cards"`
	Transactions int        `json:"transactions"`
	Mismatches   []Mismatch `json:"mismatches"`
}

func (r VerifyReport) OK() bool { return len(r.Mismatches) == 0 }

// VerifyService recomputes every balance as opening value plus the effects
// of the active transactions and compares it with what is stored.
type VerifyService struct {
	store  storage.Store
	logger *log.Logger
}

func NewVerifyService(store storage.Store) *VerifyService {
	return &VerifyService{store: store, logger: log.For(log.ComponentLedger)}
}

func (s *VerifyService) VerifyBalances(ctx context.Context, ownerID int64) (VerifyReport, error) {
	report := VerifyReport{OwnerID: ownerID, Mismatches: []Mismatch{}}

	// One unit of work gives a consistent snapshot of balances and transactions.
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		accounts, err := tx.ListAccounts(ctx, ownerID)
		if err != nil {
			return err
		}
		cards, err := tx.ListCards(ctx, ownerID)
		if err != nil {
			return err
		}
		txs, err := tx.ListTransactions(ctx, ownerID)
		if err != nil {
			return err
		}

		effects := make([][]core.Posting, 0, len(txs))
		for _, t := range txs {
			effects = append(effects, t.Effects())
		}
		net := core.Net(effects...)

		for _, a := range accounts {
			want := a.OpeningBalance.Add(net[core.Target{Kind: core.AccountTarget, ID: a.ID}])
			if !want.Equal(a.Balance) {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Kind: core.AccountTarget, ID: a.ID, Name: a.Name, Stored: a.Balance, Expected: want,
				})
			}
		}
		for _, c := range cards {
			want := c.OpeningBill.Add(net[core.Target{Kind: core.CardTarget, ID: c.ID}])
			if !want.Equal(c.CurrentBill) {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Kind: core.CardTarget, ID: c.ID, Name: c.Name, Stored: c.CurrentBill, Expected: want,
				})
			}
		}

		report.Accounts = len(accounts)
		report.Cards = len(cards)
		report.Transactions = len(txs)
		return nil
	})
	if err != nil {
		return VerifyReport{}, internal("verify balances", err)
	}

	if !report.OK() {
		s.logger.WarnContext(ctx, "Balance mismatches found",
			log.FieldOperation, log.OpVerify,
			log.FieldOwnerID, ownerID,
			"mismatches", len(report.Mismatches))
	}
	return report, nil
}
