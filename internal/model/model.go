// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Game is a time-boxed trading simulation. InitialCash is fixed at creation;
// the only mutation after that is appending to Players.
type Game struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	StartTime   time.Time       `json:"start_time" db:"start_time"`
	EndTime     time.Time       `json:"end_time" db:"end_time"`
	InitialCash decimal.Decimal `json:"initial_cash" db:"initial_cash"`
	Players     []string        `json:"players"`
	Version     int64           `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// HasPlayer reports whether playerID is on the roster.
func (g *Game) HasPlayer(playerID string) bool {
	return slices.Contains(g.Players, playerID)
}

// AddPlayer appends playerID to the roster unless it is already present.
// It reports whether the roster changed.
func (g *Game) AddPlayer(playerID string) bool {
	if g.HasPlayer(playerID) {
		return false
	}
	g.Players = append(g.Players, playerID)
	return true
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	c := *g
	c.Players = slices.Clone(g.Players)
	return &c
}

// Holding is a (symbol, quantity) entry within a portfolio. Quantity is
// always > 0 for a stored holding.
type Holding struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// Portfolio is one player's cash and holdings within one game.
// Version is bumped by the store on every successful save.
type Portfolio struct {
	ID        string          `json:"id" db:"id"`
	PlayerID  string          `json:"player_id" db:"player_id"`
	GameID    string          `json:"game_id" db:"game_id"`
	Cash      decimal.Decimal `json:"cash" db:"cash"`
	Holdings  []Holding       `json:"holdings"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Quantity returns the held quantity of symbol, or 0.
func (p *Portfolio) Quantity(symbol string) int64 {
	for _, h := range p.Holdings {
		if h.Symbol == symbol {
			return h.Quantity
		}
	}
	return 0
}

// Symbols returns the held symbols in holding order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		out = append(out, h.Symbol)
	}
	return out
}

// AdjustHolding adds delta (which may be negative) to the quantity held of
// symbol. A holding that reaches zero is removed; a new symbol is appended.
// The caller must ensure the result is not negative.
func (p *Portfolio) AdjustHolding(symbol string, delta int64) {
	for i := range p.Holdings {
		if p.Holdings[i].Symbol != symbol {
			continue
		}
		p.Holdings[i].Quantity += delta
		if p.Holdings[i].Quantity == 0 {
			p.Holdings = slices.Delete(p.Holdings, i, i+1)
		}
		return
	}
	if delta > 0 {
		p.Holdings = append(p.Holdings, Holding{Symbol: symbol, Quantity: delta})
	}
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Holdings = slices.Clone(p.Holdings)
	return &c
}

// TransactionKind distinguishes buy and sell ledger entries.
type TransactionKind string

const (
	Buy  TransactionKind = "buy"
	Sell TransactionKind = "sell"
)

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	return k == Buy || k == Sell
}

// Transaction is an immutable ledger entry for one executed order.
// IDs are ULIDs, so lexical order is creation order.
type Transaction struct {
	ID         string          `json:"id" db:"id"`
	PlayerID   string          `json:"player_id" db:"player_id"`
	GameID     string          `json:"game_id" db:"game_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Quantity   int64           `json:"quantity" db:"quantity"`
	Price      decimal.Decimal `json:"price" db:"price"` // unit price at execution
	Kind       TransactionKind `json:"kind" db:"kind"`
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// Amount is Price × Quantity.
func (t *Transaction) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// ValuedHolding is a holding annotated with its current market value.
type ValuedHolding struct {
	Symbol     string          `json:"symbol"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Valuation is a mark-to-market view of a portfolio.
type Valuation struct {
	PlayerID            string          `json:"player_id"`
	GameID              string          `json:"game_id"`
	Cash                decimal.Decimal `json:"cash"`
	Holdings            []ValuedHolding `json:"holdings"`
	TotalStockValue     decimal.Decimal `json:"total_stock_value"`
	TotalPortfolioValue decimal.Decimal `json:"total_portfolio_value"`
	ValuedAt            time.Time       `json:"valued_at"`
}

// GamePage is one page of a game listing.
type GamePage struct {
	Games      []Game `json:"games"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	TotalGames int    `json:"total_games"`
}

// NewGame carries the attributes needed to create a game.
type NewGame struct {
	Name        string          `json:"name"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	InitialCash decimal.Decimal `json:"initial_cash"`
}
