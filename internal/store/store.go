// Package store defines the persistence interfaces for the game engine.
// Implementations include PostgreSQL (source of truth), SQLite (single-node),
// Redis (read-through cache for games), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/papertrade/engine/internal/model"
)

var (
	// ErrNotFound is returned when a game or portfolio does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when creating a record whose key already exists.
	ErrDuplicate = errors.New("store: duplicate key")

	// ErrVersionConflict is returned by compare-and-swap updates when the
	// stored version no longer matches the caller's copy.
	ErrVersionConflict = errors.New("store: version conflict")
)

// GameStore persists game definitions and their rosters.
type GameStore interface {
	// CreateGame persists a new game with Version 0.
	CreateGame(ctx context.Context, game *model.Game) error

	// GetGame retrieves a game by its ID.
	GetGame(ctx context.Context, id string) (*model.Game, error)

	// ListGames returns up to limit games after skipping skip, newest first,
	// together with the total number of games.
	ListGames(ctx context.Context, skip, limit int) ([]model.Game, int, error)

	// UpdateGame saves the roster if the stored version equals game.Version,
	// then increments game.Version.
	UpdateGame(ctx context.Context, game *model.Game) error
}

// PortfolioStore persists one portfolio per (player, game) pair.
type PortfolioStore interface {
	// CreatePortfolio persists a new portfolio. Returns ErrDuplicate if the
	// pair already has one.
	CreatePortfolio(ctx context.Context, p *model.Portfolio) error

	// GetPortfolio retrieves the portfolio for a (player, game) pair.
	GetPortfolio(ctx context.Context, playerID, gameID string) (*model.Portfolio, error)

	// SavePortfolio writes cash and holdings if the stored version equals
	// p.Version, then increments p.Version.
	SavePortfolio(ctx context.Context, p *model.Portfolio) error
}

// Ledger is the append-only record of executed orders.
type Ledger interface {
	// AppendTransaction appends an immutable trade record.
	AppendTransaction(ctx context.Context, tx *model.Transaction) error

	// ListTransactions returns a portfolio's entries in creation order.
	ListTransactions(ctx context.Context, playerID, gameID string) ([]model.Transaction, error)
}

// OrderCommitter saves a portfolio and appends its ledger entry as one
// atomic step. Same CAS semantics as SavePortfolio.
type OrderCommitter interface {
	CommitOrder(ctx context.Context, p *model.Portfolio, tx *model.Transaction) error
}

// Store is the full persistence interface used by the engine.
type Store interface {
	GameStore
	PortfolioStore
	Ledger
}
