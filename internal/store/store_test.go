package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/engine/internal/model"
)

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	newGame := func(id string, created time.Time) *model.Game {
		return &model.Game{
			ID:          id,
			Name:        "game " + id,
			StartTime:   t0,
			EndTime:     t0.Add(24 * time.Hour),
			InitialCash: decimal.NewFromInt(1000),
			CreatedAt:   created,
		}
	}
	newPortfolio := func(id, player, game string) *model.Portfolio {
		return &model.Portfolio{
			ID:        id,
			PlayerID:  player,
			GameID:    game,
			Cash:      decimal.NewFromInt(1000),
			CreatedAt: t0,
			UpdatedAt: t0,
		}
	}

	t.Run("game round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.CreateGame(ctx, newGame("g1", t0)))
		got, err := s.GetGame(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "game g1", got.Name)
		assert.True(t, got.InitialCash.Equal(decimal.NewFromInt(1000)))
		assert.True(t, got.StartTime.Equal(t0))
		assert.Empty(t, got.Players)
		assert.Equal(t, int64(0), got.Version)

		_, err = s.GetGame(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		err = s.CreateGame(ctx, newGame("g1", t0))
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("update game compares versions", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateGame(ctx, newGame("g1", t0)))

		a, err := s.GetGame(ctx, "g1")
		require.NoError(t, err)
		b, err := s.GetGame(ctx, "g1")
		require.NoError(t, err)

		a.AddPlayer("alice")
		require.NoError(t, s.UpdateGame(ctx, a))
		assert.Equal(t, int64(1), a.Version)

		b.AddPlayer("bob")
		assert.ErrorIs(t, s.UpdateGame(ctx, b), ErrVersionConflict)

		b, err = s.GetGame(ctx, "g1")
		require.NoError(t, err)
		b.AddPlayer("bob")
		require.NoError(t, s.UpdateGame(ctx, b))

		got, err := s.GetGame(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, got.Players)
		assert.Equal(t, int64(2), got.Version)

		assert.ErrorIs(t, s.UpdateGame(ctx, newGame("missing", t0)), ErrNotFound)
	})

	t.Run("list games newest first", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i := range 5 {
			g := newGame(fmt.Sprintf("g%d", i), t0.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.CreateGame(ctx, g))
		}

		games, total, err := s.ListGames(ctx, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, games, 2)
		assert.Equal(t, "g4", games[0].ID)
		assert.Equal(t, "g3", games[1].ID)

		games, _, err = s.ListGames(ctx, 4, 2)
		require.NoError(t, err)
		require.Len(t, games, 1)
		assert.Equal(t, "g0", games[0].ID)

		games, total, err = s.ListGames(ctx, 10, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, games)
	})

	t.Run("portfolio round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateGame(ctx, newGame("g1", t0)))

		require.NoError(t, s.CreatePortfolio(ctx, newPortfolio("p1", "alice", "g1")))
		err := s.CreatePortfolio(ctx, newPortfolio("p2", "alice", "g1"))
		assert.ErrorIs(t, err, ErrDuplicate)

		p, err := s.GetPortfolio(ctx, "alice", "g1")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)
		assert.True(t, p.Cash.Equal(decimal.NewFromInt(1000)))
		assert.Empty(t, p.Holdings)

		_, err = s.GetPortfolio(ctx, "bob", "g1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save portfolio keeps holding order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.CreateGame(ctx, newGame("g1", t0)))
		require.NoError(t, s.CreatePortfolio(ctx, newPortfolio("p1", "alice", "g1")))

		p, err := s.GetPortfolio(ctx, "alice", "g1")
		require.NoError(t, err)
		stale := p.Clone()

		p.Cash = decimal.RequireFromString("123.45")
		p.AdjustHolding("MSFT", 2)
		p.AdjustHolding("AAPL", 7)
		require.NoError(t, s.SavePortfolio(ctx, p))
		assert.Equal(t, int64(1), p.Version)

		got, err := s.GetPortfolio(ctx, "alice", "g1")
		require.NoError(t, err)
		assert.True(t, got.Cash.Equal(decimal.RequireFromString("123.45")))
		assert.Equal(t, []model.Holding{{Symbol: "MSFT", Quantity: 2}, {Symbol: "AAPL", Quantity: 7}}, got.Holdings)

		stale.Cash = decimal.Zero
		assert.ErrorIs(t, s.SavePortfolio(ctx, stale), ErrVersionConflict)
	})

	t.Run("ledger in creation order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i, kind := range []model.TransactionKind{model.Buy, model.Sell, model.Buy} {
			require.NoError(t, s.AppendTransaction(ctx, &model.Transaction{
				ID:         fmt.Sprintf("01HX%022d", i),
				PlayerID:   "alice",
				GameID:     "g1",
				Symbol:     "AAPL",
				Quantity:   int64(i + 1),
				Price:      decimal.RequireFromString("150.25"),
				Kind:       kind,
				ExecutedAt: t0.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, s.AppendTransaction(ctx, &model.Transaction{
			ID: "01HY", PlayerID: "bob", GameID: "g1", Symbol: "AAPL",
			Quantity: 1, Price: decimal.NewFromInt(1), Kind: model.Buy, ExecutedAt: t0,
		}))

		entries, err := s.ListTransactions(ctx, "alice", "g1")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, model.Sell, entries[1].Kind)
		assert.Equal(t, int64(3), entries[2].Quantity)
		assert.True(t, entries[0].Price.Equal(decimal.RequireFromString("150.25")))
		assert.True(t, entries[2].ExecutedAt.Equal(t0.Add(2*time.Second)))

		none, err := s.ListTransactions(ctx, "carol", "g1")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("commit order is all or nothing", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		c, ok := s.(OrderCommitter)
		if !ok {
			t.Skip("store does not commit atomically")
		}
		require.NoError(t, s.CreateGame(ctx, newGame("g1", t0)))
		require.NoError(t, s.CreatePortfolio(ctx, newPortfolio("p1", "alice", "g1")))

		p, err := s.GetPortfolio(ctx, "alice", "g1")
		require.NoError(t, err)
		stale := p.Clone()

		p.Cash = decimal.NewFromInt(850)
		p.AdjustHolding("AAPL", 1)
		entry := &model.Transaction{
			ID: "01HZ0000000000000000000001", PlayerID: "alice", GameID: "g1", Symbol: "AAPL",
			Quantity: 1, Price: decimal.NewFromInt(150), Kind: model.Buy, ExecutedAt: t0,
		}
		require.NoError(t, c.CommitOrder(ctx, p, entry))

		// A stale commit must write neither the portfolio nor the entry.
		stale.Cash = decimal.NewFromInt(1)
		entry2 := *entry
		entry2.ID = "01HZ0000000000000000000002"
		assert.ErrorIs(t, c.CommitOrder(ctx, stale, &entry2), ErrVersionConflict)

		got, err := s.GetPortfolio(ctx, "alice", "g1")
		require.NoError(t, err)
		assert.True(t, got.Cash.Equal(decimal.NewFromInt(850)))
		entries, err := s.ListTransactions(ctx, "alice", "g1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, entry.ID, entries[0].ID)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	g := &model.Game{ID: "g1", Players: []string{"alice"}}
	require.NoError(t, s.CreateGame(ctx, g))

	g.Players[0] = "mallory"
	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	got.Players = append(got.Players, "bob")

	again, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, again.Players)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotFound, ErrDuplicate))
	assert.False(t, errors.Is(ErrVersionConflict, ErrNotFound))
}
