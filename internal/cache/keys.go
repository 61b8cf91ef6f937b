package cache

import (
	"fmt"
	"strings"
	"time"
)

// absentField stands in for an optional filter that was not provided, so
// logically identical filter sets always serialize to the same key.
const absentField = "none"

const (
	domainBalance      = "balance"
	domainTransactions = "transactions"
)

// BalanceKey returns the cache key for an identity's aggregate balance snapshot.
func BalanceKey(identity string) string {
	return fmt.Sprintf("%s:%s", domainBalance, identity)
}

// TransactionsKey returns the cache key for a parameterized transaction query.
// Optional filters serialize as a sentinel token when absent.
func TransactionsKey(identity, category string, start, end *time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		domainTransactions,
		identity,
		fieldOrAbsent(strings.ToLower(strings.TrimSpace(category))),
		dateOrAbsent(start),
		dateOrAbsent(end),
	)
}

// IdentityPatterns returns the match patterns covering every parameterized key
// that may exist for an identity.
func IdentityPatterns(identity string) []string {
	return []string{
		fmt.Sprintf("%s:%s:*", domainTransactions, identity),
	}
}

// IdentityKeys returns the fixed well-known keys for an identity.
func IdentityKeys(identity string) []string {
	return []string{
		BalanceKey(identity),
	}
}

// Domain extracts the key's domain prefix for metric labels.
func Domain(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

func fieldOrAbsent(v string) string {
	if v == "" {
		return absentField
	}
	return v
}

func dateOrAbsent(t *time.Time) string {
	if t == nil {
		return absentField
	}
	return t.Format("2006-01-02")
}
