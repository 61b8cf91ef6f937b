package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/tool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/cache"
	"github.com/finsight-core/server/internal/finance"
)

type stubStore struct {
	snap *finance.Snapshot
	txs  []finance.Transaction

	lastFrom, lastTo *time.Time
}

func (s *stubStore) BalanceSnapshot(ctx context.Context, identity string) (*finance.Snapshot, error) {
	return s.snap, nil
}

func (s *stubStore) Transactions(ctx context.Context, identity string, from, to *time.Time) ([]finance.Transaction, error) {
	s.lastFrom, s.lastTo = from, to
	return s.txs, nil
}

func setupTools(t *testing.T, store finance.Store) []tool.BaseTool {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(rdb, cache.Config{TTLSeconds: 30})
	exec := capability.NewExecutor(store, c, capability.Config{PreviewLimit: 15})
	return GetQueryTools(exec)
}

func invoke(t *testing.T, bt tool.BaseTool, ctx context.Context, args string) (string, error) {
	t.Helper()
	inv, ok := bt.(tool.InvokableTool)
	require.True(t, ok)
	return inv.InvokableRun(ctx, args)
}

func TestToolInfosDeclareBothTools(t *testing.T) {
	ts := setupTools(t, &stubStore{snap: &finance.Snapshot{}})

	infos, err := GetToolInfos(context.Background(), ts)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, ToolGetBalance, infos[0].Name)
	assert.Equal(t, ToolSearchTransactions, infos[1].Name)
}

func TestGetBalanceToolReadsIdentityFromContext(t *testing.T) {
	store := &stubStore{snap: &finance.Snapshot{
		TotalBalance:      decimal.RequireFromString("250.50"),
		MonthIncome:       decimal.NewFromInt(1000),
		MonthExpenses:     decimal.RequireFromString("749.50"),
		MonthTransactions: 12,
	}}
	ts := setupTools(t, store)
	ctx := capability.ContextWithIdentity(context.Background(), "user-1")

	raw, err := invoke(t, ts[0], ctx, `{}`)
	require.NoError(t, err)

	var out GetBalanceOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	assert.Equal(t, "250.50", out.TotalBalance)
	assert.Equal(t, 12, out.MonthTransactions)
}

func TestGetBalanceToolFailsWithoutIdentity(t *testing.T) {
	ts := setupTools(t, &stubStore{snap: &finance.Snapshot{}})

	_, err := invoke(t, ts[0], context.Background(), `{}`)
	assert.Error(t, err)
}

func TestSearchTransactionsToolParsesDatesAndDropsInvalid(t *testing.T) {
	store := &stubStore{txs: []finance.Transaction{{
		Date:        time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: "Super Mercado Central",
		Category:    "Groceries",
		Amount:      decimal.RequireFromString("-45.20"),
		Kind:        finance.KindExpense,
	}}}
	ts := setupTools(t, store)
	ctx := capability.ContextWithIdentity(context.Background(), "user-1")

	raw, err := invoke(t, ts[1], ctx, `{"category":"super","start_date":"2025-01-01","end_date":"not-a-date"}`)
	require.NoError(t, err)

	require.NotNil(t, store.lastFrom)
	assert.Equal(t, "2025-01-01", store.lastFrom.Format("2006-01-02"))
	assert.Nil(t, store.lastTo, "unparseable dates are dropped, not fatal")

	var out SearchTransactionsOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "Super Mercado Central", out.Transactions[0].Description)
	assert.Equal(t, "-45.20", out.Transactions[0].Amount)
}
