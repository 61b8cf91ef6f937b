package finance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	logx "github.com/finsight-core/server/pkg/logger"
)

// PostgresConfig describes the connection to the financial database,
// sourced from environment variables.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	Database string `envconfig:"POSTGRES_DB" default:"finsight"`
	User     string `envconfig:"POSTGRES_USER" default:"finsight"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
	MaxIdle  int    `envconfig:"POSTGRES_MAX_IDLE" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// PostgresStore is a read-only Store over the financial database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies it.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing pool. Used by tests.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const snapshotQuery = `
SELECT
    COALESCE((SELECT SUM(a.balance) FROM accounts a WHERE a.user_id = $1), 0) AS total_balance,
    COALESCE(SUM(CASE WHEN t.kind = 'income' THEN t.amount ELSE 0 END), 0)   AS month_income,
    COALESCE(SUM(CASE WHEN t.kind = 'expense' THEN t.amount ELSE 0 END), 0)  AS month_expenses,
    COUNT(t.id)                                                              AS month_transactions
FROM transactions t
WHERE t.user_id = $1
  AND t.occurred_on >= date_trunc('month', CURRENT_DATE)`

func (s *PostgresStore) BalanceSnapshot(ctx context.Context, identity string) (*Snapshot, error) {
	var total, income, expenses string
	var count int

	row := s.db.QueryRowContext(ctx, snapshotQuery, identity)
	if err := row.Scan(&total, &income, &expenses, &count); err != nil {
		return nil, fmt.Errorf("scan balance snapshot: %w", err)
	}

	snap := &Snapshot{MonthTransactions: count}
	var err error
	if snap.TotalBalance, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total balance %q: %w", total, err)
	}
	if snap.MonthIncome, err = decimal.NewFromString(income); err != nil {
		return nil, fmt.Errorf("parse month income %q: %w", income, err)
	}
	if snap.MonthExpenses, err = decimal.NewFromString(expenses); err != nil {
		return nil, fmt.Errorf("parse month expenses %q: %w", expenses, err)
	}
	return snap, nil
}

const transactionsQuery = `
SELECT t.id, t.occurred_on, t.description, COALESCE(c.name, ''), t.amount, t.kind
FROM transactions t
LEFT JOIN categories c ON c.id = t.category_id
WHERE t.user_id = $1
  AND ($2::date IS NULL OR t.occurred_on >= $2)
  AND ($3::date IS NULL OR t.occurred_on <= $3)
ORDER BY t.occurred_on DESC`

func (s *PostgresStore) Transactions(ctx context.Context, identity string, from, to *time.Time) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionsQuery, identity, nullDate(from), nullDate(to))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var amount string
		if err := rows.Scan(&tx.ID, &tx.Date, &tx.Description, &tx.Category, &amount, &tx.Kind); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	logx.Debug().Str("identity", identity).Int("count", len(txs)).Msg("transactions loaded")
	return txs, nil
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Store = (*PostgresStore)(nil)
