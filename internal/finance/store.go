package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds as recorded by the data store.
const (
	KindIncome  = "income"
	KindExpense = "expense"
)

// Snapshot is the aggregate view of an identity's finances: total balance
// across accounts plus totals for the current calendar month.
type Snapshot struct {
	TotalBalance      decimal.Decimal `json:"total_balance"`
	MonthIncome       decimal.Decimal `json:"month_income"`
	MonthExpenses     decimal.Decimal `json:"month_expenses"`
	MonthTransactions int             `json:"month_transactions"`
}

// Transaction is a single money movement owned by an identity.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
}

// Store exposes the read operations this pipeline needs over financial data.
// The pipeline never mutates financial data; write paths live in separate
// request handlers and are responsible for cache invalidation on success.
type Store interface {
	// BalanceSnapshot returns the aggregate snapshot for an identity.
	BalanceSnapshot(ctx context.Context, identity string) (*Snapshot, error)

	// Transactions returns an identity's transactions inside the inclusive
	// date range. A nil bound leaves that side unbounded.
	Transactions(ctx context.Context, identity string, from, to *time.Time) ([]Transaction, error)
}
