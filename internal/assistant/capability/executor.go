// Package capability implements the read capabilities over financial data.
// The same Executor serves both dispatch strategies: the classification
// pre-pass invokes it directly, and the model-declared tools delegate to it,
// so results are consistent regardless of path.
package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/cache"
	"github.com/finsight-core/server/internal/finance"
	logx "github.com/finsight-core/server/pkg/logger"
)

// NoFinancialData is the sentinel context for turns that need no store or
// cache access (greetings, help, uncategorizable chatter).
const NoFinancialData = "NO_FINANCIAL_DATA_REQUIRED"

// Config holds executor tunables, sourced from environment variables.
type Config struct {
	BalanceTTLSeconds      int `envconfig:"BALANCE_CACHE_TTL_SECONDS" default:"30"`
	TransactionsTTLSeconds int `envconfig:"TRANSACTIONS_CACHE_TTL_SECONDS" default:"30"`
	PreviewLimit           int `envconfig:"TRANSACTIONS_PREVIEW_LIMIT" default:"15"`
}

// TransactionsResult is a bounded view over a transaction query: the first
// PreviewLimit matches plus the true total, so the synthesizer can truthfully
// say "N total, showing M".
type TransactionsResult struct {
	Total        int                   `json:"total"`
	Showing      int                   `json:"showing"`
	Transactions []finance.Transaction `json:"transactions"`
}

// Executor resolves intentions against the financial data store through the
// cache. Read-only: nothing here ever mutates financial data.
type Executor struct {
	store finance.Store
	cache *cache.Cache
	cfg   Config
}

func NewExecutor(store finance.Store, c *cache.Cache, cfg Config) *Executor {
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 15
	}
	return &Executor{store: store, cache: c, cfg: cfg}
}

// Execute resolves the intention into the bounded context text injected into
// the generation prompt. Store or cache trouble is recovered locally into an
// apologetic context string; the synthesizer always receives some string,
// never an error.
func (e *Executor) Execute(ctx context.Context, intn model.Intention, identity string) string {
	switch intn.Intent {
	case model.IntentBalance:
		snap, err := e.Balance(ctx, identity)
		if err != nil {
			logx.Error().Err(err).Str("identity", identity).Msg("balance capability failed")
			return "A technical error occurred while retrieving the balance. Apologize briefly and suggest trying again shortly."
		}
		return renderSnapshot(snap)

	case model.IntentTransactions:
		res, err := e.SearchTransactions(ctx, identity, intn.Parameters)
		if err != nil {
			logx.Error().Err(err).Str("identity", identity).Msg("transactions capability failed")
			return "A technical error occurred while retrieving transactions. Apologize briefly and suggest trying again shortly."
		}
		return renderTransactions(res)

	default:
		return NoFinancialData
	}
}

// Balance returns the aggregate snapshot for identity, read through the cache.
func (e *Executor) Balance(ctx context.Context, identity string) (*finance.Snapshot, error) {
	key := cache.BalanceKey(identity)

	var snap finance.Snapshot
	if e.cache.GetJSON(ctx, key, &snap) {
		return &snap, nil
	}

	fresh, err := e.store.BalanceSnapshot(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("balance snapshot for %s: %w", identity, err)
	}

	e.cache.Set(ctx, key, fresh, time.Duration(e.cfg.BalanceTTLSeconds)*time.Second)
	return fresh, nil
}

// SearchTransactions returns transactions filtered by the parameters, read
// through the cache. The date range is inclusive, an absent bound unbounded.
// The category filter is a permissive case-insensitive substring match over
// description plus category name, because users phrase categories loosely.
func (e *Executor) SearchTransactions(ctx context.Context, identity string, params model.Parameters) (*TransactionsResult, error) {
	key := cache.TransactionsKey(identity, params.Category, params.StartDate, params.EndDate)

	var cached TransactionsResult
	if e.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	txs, err := e.store.Transactions(ctx, identity, params.StartDate, params.EndDate)
	if err != nil {
		return nil, fmt.Errorf("transactions for %s: %w", identity, err)
	}

	if params.Category != "" {
		filtered := txs[:0]
		for _, tx := range txs {
			if matchesCategory(tx, params.Category) {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}

	res := &TransactionsResult{Total: len(txs)}
	preview := txs
	if len(preview) > e.cfg.PreviewLimit {
		preview = preview[:e.cfg.PreviewLimit]
	}
	res.Showing = len(preview)
	res.Transactions = preview

	e.cache.Set(ctx, key, res, time.Duration(e.cfg.TransactionsTTLSeconds)*time.Second)
	return res, nil
}

func matchesCategory(tx finance.Transaction, category string) bool {
	haystack := strings.ToLower(tx.Description + " " + tx.Category)
	return strings.Contains(haystack, strings.ToLower(strings.TrimSpace(category)))
}

func renderSnapshot(s *finance.Snapshot) string {
	return fmt.Sprintf(
		"Current financial snapshot: total balance %s; this month: income %s, expenses %s, %d transactions.",
		s.TotalBalance.StringFixed(2),
		s.MonthIncome.StringFixed(2),
		s.MonthExpenses.StringFixed(2),
		s.MonthTransactions,
	)
}

func renderTransactions(r *TransactionsResult) string {
	if r.Total == 0 {
		return "No transactions match the requested filters."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Matching transactions: %d total, showing the first %d:\n", r.Total, r.Showing)
	for _, tx := range r.Transactions {
		fmt.Fprintf(&b, "- %s | %s", tx.Date.Format("2006-01-02"), tx.Description)
		if tx.Category != "" {
			fmt.Fprintf(&b, " (%s)", tx.Category)
		}
		fmt.Fprintf(&b, " | %s %s\n", tx.Kind, tx.Amount.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}
