package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/engine/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "papertrade.db")
	s, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newTestSQLite(t) })
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteStore_CorruptPriceIsAnError(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.AppendTransaction(ctx, &model.Transaction{
		ID: "01HZ0000000000000000000001", PlayerID: "alice", GameID: "g1", Symbol: "AAPL",
		Quantity: 1, Price: decimal.NewFromInt(150), Kind: model.Buy, ExecutedAt: time.Now(),
	}))
	_, err := s.db.ExecContext(ctx, `UPDATE transactions SET price = 'n/a'`)
	require.NoError(t, err)

	_, err = s.ListTransactions(ctx, "alice", "g1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse price")
}
