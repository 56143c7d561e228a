// Package engine implements the trading game: player registration, buy and
// sell orders against oracle prices, and portfolio valuation.
//
// Orders on one portfolio are serialized by a per-portfolio lock inside the
// process and by version-checked writes across processes. The oracle is
// consulted before the lock is taken; funds, holdings and the trading
// window are re-checked once it is held.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/id"
	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/oracle"
	"github.com/papertrade/engine/internal/store"
)

const (
	defaultCASAttempts = 5
	maxPageSize        = 100
)

// Notifier is told about every committed order. Calls happen after the
// portfolio lock is released and must not block.
type Notifier interface {
	OrderExecuted(tx model.Transaction)
}

// Engine runs game operations against a Store and an Oracle.
type Engine struct {
	store    store.Store
	oracle   oracle.Oracle
	now      func() time.Time
	log      *slog.Logger
	notifier Notifier

	casAttempts    int
	portfolioLocks *keyedMutex
	gameLocks      *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for trading-window checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithNotifier registers a listener for executed orders.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithCASAttempts bounds how many times a version conflict is retried.
func WithCASAttempts(n int) Option {
	return func(e *Engine) { e.casAttempts = max(n, 1) }
}

// New creates an engine.
func New(st store.Store, o oracle.Oracle, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		oracle:         o,
		now:            time.Now,
		log:            slog.Default(),
		casAttempts:    defaultCASAttempts,
		portfolioLocks: newKeyedMutex(),
		gameLocks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateGame validates and persists a new game with an empty roster.
func (e *Engine) CreateGame(ctx context.Context, ng model.NewGame) (*model.Game, error) {
	name := strings.TrimSpace(ng.Name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case ng.InitialCash.IsNegative():
		return nil, fmt.Errorf("%w: initial cash must not be negative", ErrValidation)
	case ng.StartTime.IsZero() || ng.EndTime.IsZero():
		return nil, fmt.Errorf("%w: start and end time are required", ErrValidation)
	case !ng.StartTime.Before(ng.EndTime):
		return nil, fmt.Errorf("%w: start time must be before end time", ErrValidation)
	}

	g := &model.Game{
		ID:          id.New(),
		Name:        name,
		StartTime:   ng.StartTime.UTC(),
		EndTime:     ng.EndTime.UTC(),
		InitialCash: ng.InitialCash,
		Players:     []string{},
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.CreateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	e.log.Info("game created",
		"game_id", g.ID,
		"name", g.Name,
		"start", g.StartTime,
		"end", g.EndTime,
		"initial_cash", g.InitialCash.String(),
	)
	return g, nil
}

// GetGame returns one game with its roster.
func (e *Engine) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	return e.loadGame(ctx, gameID)
}

// ListGames returns one page of games, newest first. page is 1-based.
func (e *Engine) ListGames(ctx context.Context, page, pageSize int) (*model.GamePage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", ErrValidation)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 1 and %d", ErrValidation, maxPageSize)
	}

	games, total, err := e.store.ListGames(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	if games == nil {
		games = []model.Game{}
	}
	return &model.GamePage{
		Games:      games,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		TotalGames: total,
	}, nil
}

// ListTransactions returns the ledger of one portfolio in creation order.
func (e *Engine) ListTransactions(ctx context.Context, playerID, gameID string) ([]model.Transaction, error) {
	if _, err := e.loadPortfolio(ctx, playerID, gameID); err != nil {
		return nil, err
	}
	txs, err := e.store.ListTransactions(ctx, playerID, gameID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return txs, nil
}

// Valuation marks a portfolio to market with one batched oracle call. Any
// held symbol without a usable price fails the whole valuation.
func (e *Engine) Valuation(ctx context.Context, playerID, gameID string) (*model.Valuation, error) {
	p, err := e.loadPortfolio(ctx, playerID, gameID)
	if err != nil {
		return nil, err
	}

	v := &model.Valuation{
		PlayerID:            p.PlayerID,
		GameID:              p.GameID,
		Cash:                p.Cash,
		Holdings:            make([]model.ValuedHolding, 0, len(p.Holdings)),
		TotalStockValue:     decimal.Zero,
		TotalPortfolioValue: p.Cash,
		ValuedAt:            e.now().UTC(),
	}
	if len(p.Holdings) == 0 {
		return v, nil
	}

	prices, err := e.oracle.QuoteBatch(ctx, p.Symbols())
	if err != nil {
		return nil, priceError(ctx, strings.Join(p.Symbols(), ","), err)
	}

	for _, h := range p.Holdings {
		price, ok := prices[h.Symbol]
		if !ok || !price.IsPositive() {
			return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, h.Symbol)
		}
		total := price.Mul(decimal.NewFromInt(h.Quantity))
		v.Holdings = append(v.Holdings, model.ValuedHolding{
			Symbol:     h.Symbol,
			Quantity:   h.Quantity,
			UnitPrice:  price,
			TotalValue: total,
		})
		v.TotalStockValue = v.TotalStockValue.Add(total)
	}
	v.TotalPortfolioValue = p.Cash.Add(v.TotalStockValue)
	return v, nil
}

func (e *Engine) loadGame(ctx context.Context, gameID string) (*model.Game, error) {
	g, err := e.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	return g, nil
}

func (e *Engine) loadPortfolio(ctx context.Context, playerID, gameID string) (*model.Portfolio, error) {
	p, err := e.store.GetPortfolio(ctx, playerID, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: player %s in game %s", ErrPortfolioNotFound, playerID, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s/%s: %w", playerID, gameID, err)
	}
	return p, nil
}

// checkWindow enforces the inclusive trading window [start, end].
func (e *Engine) checkWindow(g *model.Game) error {
	now := e.now()
	if now.Before(g.StartTime) {
		return fmt.Errorf("%w: opens at %s", ErrGameNotStarted, g.StartTime.Format(time.RFC3339))
	}
	if now.After(g.EndTime) {
		return fmt.Errorf("%w: closed at %s", ErrGameEnded, g.EndTime.Format(time.RFC3339))
	}
	return nil
}

// priceError maps an oracle failure to ErrPriceUnavailable unless the
// caller's context ended.
func priceError(ctx context.Context, symbols string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("quote %s: %w", symbols, ctx.Err())
	}
	if errors.Is(err, ErrPriceUnavailable) {
		return fmt.Errorf("quote %s: %w", symbols, err)
	}
	return fmt.Errorf("quote %s: %w: %w", symbols, ErrPriceUnavailable, err)
}

func portfolioKey(playerID, gameID string) string {
	return playerID + "|" + gameID
}
