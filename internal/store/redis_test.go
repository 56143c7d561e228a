package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/engine/internal/model"
)

func newTestCached(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	primary := NewMemoryStore()
	return NewCachedStore(primary, rdb, time.Minute), primary, mr
}

func TestCachedStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, _, _ := newTestCached(t)
		return s
	})
}

func TestCachedStore_GetGameReadsThrough(t *testing.T) {
	ctx := context.Background()
	s, primary, mr := newTestCached(t)

	g := &model.Game{ID: "g1", Name: "cached", InitialCash: decimal.NewFromInt(500)}
	require.NoError(t, primary.CreateGame(ctx, g))
	assert.False(t, mr.Exists("game:g1"))

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name)
	assert.True(t, mr.Exists("game:g1"))

	// Served from Redis once cached.
	mr.Set("game:g1", `{"id":"g1","name":"from cache","initial_cash":"500","players":null,"version":0}`)
	got, err = s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "from cache", got.Name)
}

func TestCachedStore_UpdateGameInvalidates(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newTestCached(t)

	require.NoError(t, s.CreateGame(ctx, &model.Game{ID: "g1"}))
	assert.True(t, mr.Exists("game:g1"))

	g, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	g.AddPlayer("alice")
	require.NoError(t, s.UpdateGame(ctx, g))
	assert.False(t, mr.Exists("game:g1"))

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.Players)
}

func TestCachedStore_ConflictInvalidates(t *testing.T) {
	ctx := context.Background()
	s, primary, mr := newTestCached(t)

	require.NoError(t, s.CreateGame(ctx, &model.Game{ID: "g1"}))

	// Another writer bumps the version behind the cache's back.
	direct, err := primary.GetGame(ctx, "g1")
	require.NoError(t, err)
	direct.AddPlayer("bob")
	require.NoError(t, primary.UpdateGame(ctx, direct))

	stale, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, stale.Players)

	stale.AddPlayer("alice")
	assert.ErrorIs(t, s.UpdateGame(ctx, stale), ErrVersionConflict)
	assert.False(t, mr.Exists("game:g1"))

	fresh, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, fresh.Players)
}
