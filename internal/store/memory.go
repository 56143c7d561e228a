package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/papertrade/engine/internal/model"
)

var (
	_ Store          = (*MemoryStore)(nil)
	_ OrderCommitter = (*MemoryStore)(nil)
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	games      map[string]*model.Game
	portfolios map[string]*model.Portfolio // key: portfolioKey(player, game)
	ledger     []model.Transaction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:      make(map[string]*model.Game),
		portfolios: make(map[string]*model.Portfolio),
	}
}

func portfolioKey(playerID, gameID string) string {
	return playerID + "|" + gameID
}

// --- Games ---

func (s *MemoryStore) CreateGame(_ context.Context, g *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[g.ID]; ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrDuplicate)
	}
	// Store a copy to avoid external mutation.
	s.games[g.ID] = g.Clone()
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g.Clone(), nil
}

func (s *MemoryStore) ListGames(_ context.Context, skip, limit int) ([]model.Game, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		all = append(all, *g.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if skip >= total {
		return []model.Game{}, total, nil
	}
	end := min(skip+limit, total)
	return all[skip:end], total, nil
}

func (s *MemoryStore) UpdateGame(_ context.Context, g *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.games[g.ID]
	if !ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	if cur.Version != g.Version {
		return fmt.Errorf("game %s: %w", g.ID, ErrVersionConflict)
	}
	g.Version++
	s.games[g.ID] = g.Clone()
	return nil
}

// --- Portfolios ---

func (s *MemoryStore) CreatePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := portfolioKey(p.PlayerID, p.GameID)
	if _, ok := s.portfolios[key]; ok {
		return fmt.Errorf("portfolio %s: %w", key, ErrDuplicate)
	}
	s.portfolios[key] = p.Clone()
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, playerID, gameID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[portfolioKey(playerID, gameID)]
	if !ok {
		return nil, fmt.Errorf("portfolio %s/%s: %w", playerID, gameID, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.savePortfolioLocked(p)
}

func (s *MemoryStore) savePortfolioLocked(p *model.Portfolio) error {
	key := portfolioKey(p.PlayerID, p.GameID)
	cur, ok := s.portfolios[key]
	if !ok {
		return fmt.Errorf("portfolio %s: %w", key, ErrNotFound)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("portfolio %s: %w", key, ErrVersionConflict)
	}
	p.Version++
	s.portfolios[key] = p.Clone()
	return nil
}

// --- Immutable ledger ---

func (s *MemoryStore) AppendTransaction(_ context.Context, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *tx)
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, playerID, gameID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, tx := range s.ledger {
		if tx.PlayerID == playerID && tx.GameID == gameID {
			result = append(result, tx)
		}
	}
	return result, nil
}

// CommitOrder saves the portfolio and appends the entry under one lock.
func (s *MemoryStore) CommitOrder(_ context.Context, p *model.Portfolio, tx *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.savePortfolioLocked(p); err != nil {
		return err
	}
	s.ledger = append(s.ledger, *tx)
	return nil
}
