package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/cache"
	"github.com/finsight-core/server/internal/finance"
)

// fakeStore computes snapshots from a fixed transaction list and counts reads.
type fakeStore struct {
	balance       decimal.Decimal
	txs           []finance.Transaction
	snapshotCalls int
	txCalls       int
	fail          bool
}

func (f *fakeStore) BalanceSnapshot(ctx context.Context, identity string) (*finance.Snapshot, error) {
	f.snapshotCalls++
	if f.fail {
		return nil, errors.New("store unavailable")
	}
	snap := &finance.Snapshot{TotalBalance: f.balance}
	for _, tx := range f.txs {
		switch tx.Kind {
		case finance.KindIncome:
			snap.MonthIncome = snap.MonthIncome.Add(tx.Amount)
		case finance.KindExpense:
			snap.MonthExpenses = snap.MonthExpenses.Add(tx.Amount.Abs())
		}
		snap.MonthTransactions++
	}
	return snap, nil
}

func (f *fakeStore) Transactions(ctx context.Context, identity string, from, to *time.Time) ([]finance.Transaction, error) {
	f.txCalls++
	if f.fail {
		return nil, errors.New("store unavailable")
	}
	var out []finance.Transaction
	for _, tx := range f.txs {
		if from != nil && tx.Date.Before(*from) {
			continue
		}
		if to != nil && tx.Date.After(*to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func tx(date, desc, category, amount, kind string) finance.Transaction {
	return finance.Transaction{
		ID:          desc,
		Date:        mustDate(date),
		Description: desc,
		Category:    category,
		Amount:      decimal.RequireFromString(amount),
		Kind:        kind,
	}
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func setupExecutor(t *testing.T, store finance.Store) (*Executor, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(rdb, cache.Config{TTLSeconds: 30})
	return NewExecutor(store, c, Config{BalanceTTLSeconds: 30, TransactionsTTLSeconds: 30, PreviewLimit: 15}), mr
}

func TestBalanceContextMatchesStoreTotals(t *testing.T) {
	store := &fakeStore{
		balance: decimal.RequireFromString("1520.75"),
		txs: []finance.Transaction{
			tx("2025-06-01", "Salary", "Income", "2000.00", finance.KindIncome),
			tx("2025-06-05", "Super Mercado Central", "Groceries", "-45.20", finance.KindExpense),
			tx("2025-06-09", "Gasolinera Norte", "Transport", "-30.00", finance.KindExpense),
		},
	}
	exec, _ := setupExecutor(t, store)

	got := exec.Execute(context.Background(), model.Intention{Intent: model.IntentBalance}, "user-1")

	assert.Contains(t, got, "total balance 1520.75")
	assert.Contains(t, got, "income 2000.00")
	assert.Contains(t, got, "expenses 75.20")
	assert.Contains(t, got, "3 transactions")
}

func TestBalanceIsIdempotentWithinTTL(t *testing.T) {
	store := &fakeStore{balance: decimal.NewFromInt(100)}
	exec, _ := setupExecutor(t, store)
	ctx := context.Background()

	first := exec.Execute(ctx, model.Intention{Intent: model.IntentBalance}, "user-1")
	second := exec.Execute(ctx, model.Intention{Intent: model.IntentBalance}, "user-1")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.snapshotCalls, "second call within the TTL must be a cache hit")
}

func TestBalanceRefetchesAfterTTL(t *testing.T) {
	store := &fakeStore{balance: decimal.NewFromInt(100)}
	exec, mr := setupExecutor(t, store)
	ctx := context.Background()

	exec.Execute(ctx, model.Intention{Intent: model.IntentBalance}, "user-1")
	mr.FastForward(31 * time.Second)
	exec.Execute(ctx, model.Intention{Intent: model.IntentBalance}, "user-1")

	assert.Equal(t, 2, store.snapshotCalls)
}

func TestBalanceFailsOpenOnCacheLoss(t *testing.T) {
	store := &fakeStore{balance: decimal.NewFromInt(100)}
	exec, mr := setupExecutor(t, store)
	mr.Close()

	got := exec.Execute(context.Background(), model.Intention{Intent: model.IntentBalance}, "user-1")

	assert.Contains(t, got, "total balance 100.00", "a cache failure must degrade performance, not correctness")
	assert.Equal(t, 1, store.snapshotCalls)
}

func TestTransactionsCategoryFilterIsFuzzy(t *testing.T) {
	store := &fakeStore{txs: []finance.Transaction{
		tx("2025-01-15", "Super Mercado Central", "Groceries", "-45.20", finance.KindExpense),
		tx("2025-01-16", "Gasolinera Norte", "Transport", "-30.00", finance.KindExpense),
		tx("2025-01-17", "Farmacia", "supermarket run", "-10.00", finance.KindExpense),
	}}
	exec, _ := setupExecutor(t, store)

	res, err := exec.SearchTransactions(context.Background(), "user-1", model.Parameters{Category: "super"})
	require.NoError(t, err)

	require.Equal(t, 2, res.Total)
	assert.Equal(t, "Super Mercado Central", res.Transactions[0].Description)
	assert.Equal(t, "Farmacia", res.Transactions[1].Description, "category name participates in the match")
}

func TestTransactionsDateRangeIsInclusive(t *testing.T) {
	store := &fakeStore{txs: []finance.Transaction{
		tx("2025-01-01", "first", "", "-1.00", finance.KindExpense),
		tx("2025-01-31", "last", "", "-1.00", finance.KindExpense),
		tx("2025-02-01", "outside", "", "-1.00", finance.KindExpense),
	}}
	exec, _ := setupExecutor(t, store)

	start := mustDate("2025-01-01")
	end := mustDate("2025-01-31")
	res, err := exec.SearchTransactions(context.Background(), "user-1", model.Parameters{StartDate: &start, EndDate: &end})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
}

func TestTransactionsPreviewIsCappedButTotalIsTrue(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 40; i++ {
		store.txs = append(store.txs, tx("2025-01-10", fmt.Sprintf("tx-%02d", i), "", "-1.00", finance.KindExpense))
	}
	exec, _ := setupExecutor(t, store)

	res, err := exec.SearchTransactions(context.Background(), "user-1", model.Parameters{})
	require.NoError(t, err)

	assert.Equal(t, 40, res.Total)
	assert.Equal(t, 15, res.Showing)
	assert.Len(t, res.Transactions, 15)

	rendered := exec.Execute(context.Background(), model.Intention{Intent: model.IntentTransactions}, "user-1")
	assert.Contains(t, rendered, "40 total, showing the first 15")
}

func TestNonFinancialIntentsTouchNothing(t *testing.T) {
	store := &fakeStore{}
	exec, _ := setupExecutor(t, store)

	for _, intent := range []model.Intent{model.IntentGreeting, model.IntentHelp, model.IntentOther} {
		got := exec.Execute(context.Background(), model.Intention{Intent: intent}, "user-1")
		assert.Equal(t, NoFinancialData, got)
	}
	assert.Zero(t, store.snapshotCalls)
	assert.Zero(t, store.txCalls)
}

func TestStoreFailureIsRecoveredLocally(t *testing.T) {
	store := &fakeStore{fail: true}
	exec, _ := setupExecutor(t, store)

	got := exec.Execute(context.Background(), model.Intention{Intent: model.IntentBalance}, "user-1")
	assert.Contains(t, got, "technical error")

	got = exec.Execute(context.Background(), model.Intention{Intent: model.IntentTransactions}, "user-1")
	assert.Contains(t, got, "technical error")
}
