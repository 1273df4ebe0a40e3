package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const minSummaryYear = 1900

// MonthlySummary is the income/expense projection of one calendar month.
type MonthlySummary struct {
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	Balance      decimal.Decimal `json:"balance"`
}

// ValidatePeriod checks month in [1,12] and year >= 1900.
func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 || year < minSummaryYear {
		return ErrInvalidPeriod
	}
	return nil
}

// MonthRange returns the half-open interval [first day, first day of next month).
func MonthRange(month, year int) (Date, Date) {
	start := NewDate(year, month, 1)
	return start, Date{Time: start.AddDate(0, 1, 0)}
}

// Summarize totals income and expense of the transactions dated in the
// given month. Transfers count toward neither total.
func Summarize(month, year int, txs []Transaction) MonthlySummary {
	s := MonthlySummary{
		Month:        month,
		Year:         year,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, t := range txs {
		if !t.Date.In(year, month) {
			continue
		}
		switch t.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case Expense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return s
}

// CurrentPeriod returns the month and year of now in UTC.
func CurrentPeriod(now time.Time) (int, int) {
	now = now.UTC()
	return int(now.Month()), now.Year()
}
