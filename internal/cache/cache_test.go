package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestSetGetRoundTrip(t *testing.T) {
	_, rdb := setupRedis(t)
	c := New(rdb, Config{TTLSeconds: 30})
	ctx := context.Background()

	type snapshot struct {
		Total string `json:"total"`
	}

	c.Set(ctx, BalanceKey("user-1"), snapshot{Total: "150.00"}, 0)

	var got snapshot
	require.True(t, c.GetJSON(ctx, BalanceKey("user-1"), &got))
	assert.Equal(t, "150.00", got.Total)
}

func TestValueExpiresAfterTTL(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := New(rdb, Config{TTLSeconds: 30})
	ctx := context.Background()

	c.Set(ctx, BalanceKey("user-1"), map[string]int{"n": 1}, 10*time.Second)

	_, ok := c.Get(ctx, BalanceKey("user-1"))
	assert.True(t, ok, "value should be readable within the TTL")

	mr.FastForward(11 * time.Second)

	_, ok = c.Get(ctx, BalanceKey("user-1"))
	assert.False(t, ok, "value should be absent after the TTL elapses")
}

func TestGetFailsOpenOnBackendError(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := New(rdb, Config{TTLSeconds: 30})
	ctx := context.Background()

	c.Set(ctx, BalanceKey("user-1"), map[string]int{"n": 1}, 0)
	mr.Close()

	_, ok := c.Get(ctx, BalanceKey("user-1"))
	assert.False(t, ok, "backend error must be reported as a plain miss")

	// Set after backend loss must not panic or error either.
	c.Set(ctx, BalanceKey("user-1"), map[string]int{"n": 2}, 0)
}

func TestGetJSONRejectsCorruptValue(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := New(rdb, Config{TTLSeconds: 30})

	require.NoError(t, mr.Set(BalanceKey("user-1"), "{not json"))

	var dst map[string]any
	assert.False(t, c.GetJSON(context.Background(), BalanceKey("user-1"), &dst))
}

func TestInvalidateIdentitySweepsParameterizedKeys(t *testing.T) {
	_, rdb := setupRedis(t)
	c := New(rdb, Config{TTLSeconds: 30})
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Set(ctx, BalanceKey("user-1"), 1, 0)
	c.Set(ctx, TransactionsKey("user-1", "", nil, nil), 2, 0)
	c.Set(ctx, TransactionsKey("user-1", "super", &start, nil), 3, 0)
	c.Set(ctx, BalanceKey("user-2"), 4, 0)

	c.InvalidateIdentity(ctx, "user-1")

	_, ok := c.Get(ctx, BalanceKey("user-1"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, TransactionsKey("user-1", "", nil, nil))
	assert.False(t, ok)
	_, ok = c.Get(ctx, TransactionsKey("user-1", "super", &start, nil))
	assert.False(t, ok)

	_, ok = c.Get(ctx, BalanceKey("user-2"))
	assert.True(t, ok, "other identities must be untouched")
}

func TestKeyBuilderIsDeterministic(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a    string
		b    string
		want string
	}{
		{
			name: "all fields absent",
			a:    TransactionsKey("user-1", "", nil, nil),
			b:    TransactionsKey("user-1", "", nil, nil),
			want: "transactions:user-1:none:none:none",
		},
		{
			name: "some fields absent",
			a:    TransactionsKey("user-1", "super", &start, nil),
			b:    TransactionsKey("user-1", "super", &start, nil),
			want: "transactions:user-1:super:2025-01-01:none",
		},
		{
			name: "all fields present",
			a:    TransactionsKey("user-1", "Super ", &start, &end),
			b:    TransactionsKey("user-1", "super", &start, &end),
			want: "transactions:user-1:super:2025-01-01:2025-01-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a)
			assert.Equal(t, tt.a, tt.b)
		})
	}
}
