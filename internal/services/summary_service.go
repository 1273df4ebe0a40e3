package services

import (
	"context"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// SummaryService computes monthly income/expense totals. Nothing is cached:
// each call reads the transactions dated in the month.
type SummaryService struct {
	store storage.Reader
}

func NewSummaryService(store storage.Reader) *SummaryService {
	return &SummaryService{store: store}
}

func (s *SummaryService) GetMonthlySummary(ctx context.Context, ownerID int64, month, year int) (core.MonthlySummary, error) {
	if err := core.ValidatePeriod(month, year); err != nil {
		return core.MonthlySummary{}, err
	}

	from, to := core.MonthRange(month, year)
	txs, err := s.store.ListTransactionsBetween(ctx, ownerID, from, to)
	if err != nil {
		return core.MonthlySummary{}, internal("read month transactions", err)
	}
	return core.Summarize(month, year, txs), nil
}
