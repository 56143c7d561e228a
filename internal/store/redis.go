package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/engine/internal/model"
)

var (
	_ Store          = (*CachedStore)(nil)
	_ OrderCommitter = (*CachedStore)(nil)
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// games. Portfolios and the ledger always go to the primary, since every
// order does a compare-and-swap against them.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then refresh or invalidate) ---

func (s *CachedStore) CreateGame(ctx context.Context, g *model.Game) error {
	if err := s.primary.CreateGame(ctx, g); err != nil {
		return err
	}
	s.cacheGame(ctx, g)
	return nil
}

func (s *CachedStore) UpdateGame(ctx context.Context, g *model.Game) error {
	err := s.primary.UpdateGame(ctx, g)
	// Invalidate on conflict too, so the caller's re-read sees the primary.
	s.rdb.Del(ctx, gameKey(g.ID))
	return err
}

// --- Read-through ---

func (s *CachedStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	data, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == nil {
		var g model.Game
		if json.Unmarshal(data, &g) == nil {
			return &g, nil
		}
	}

	// Cache miss: read from primary.
	g, err := s.primary.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheGame(ctx, g)
	return g, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListGames(ctx context.Context, skip, limit int) ([]model.Game, int, error) {
	return s.primary.ListGames(ctx, skip, limit)
}

func (s *CachedStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	return s.primary.CreatePortfolio(ctx, p)
}

func (s *CachedStore) GetPortfolio(ctx context.Context, playerID, gameID string) (*model.Portfolio, error) {
	return s.primary.GetPortfolio(ctx, playerID, gameID)
}

func (s *CachedStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	return s.primary.SavePortfolio(ctx, p)
}

func (s *CachedStore) AppendTransaction(ctx context.Context, entry *model.Transaction) error {
	return s.primary.AppendTransaction(ctx, entry)
}

func (s *CachedStore) ListTransactions(ctx context.Context, playerID, gameID string) ([]model.Transaction, error) {
	return s.primary.ListTransactions(ctx, playerID, gameID)
}

// CommitOrder delegates to the primary when it can commit atomically and
// otherwise falls back to a save followed by an append.
func (s *CachedStore) CommitOrder(ctx context.Context, p *model.Portfolio, entry *model.Transaction) error {
	if c, ok := s.primary.(OrderCommitter); ok {
		return c.CommitOrder(ctx, p, entry)
	}
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		return err
	}
	if err := s.primary.AppendTransaction(ctx, entry); err != nil {
		return fmt.Errorf("ledger append after save: %w", err)
	}
	return nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheGame(ctx context.Context, g *model.Game) {
	if data, err := json.Marshal(g); err == nil {
		s.rdb.Set(ctx, gameKey(g.ID), data, s.ttl)
	}
}

func gameKey(id string) string { return fmt.Sprintf("game:%s", id) }
