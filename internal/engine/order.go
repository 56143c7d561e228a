package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/id"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/store"
)

// BuyStock buys quantity shares of symbol at the current oracle price.
func (e *Engine) BuyStock(ctx context.Context, playerID, gameID, symbol string, quantity int64) (*model.Transaction, error) {
	return e.Execute(ctx, playerID, gameID, model.OrderRequest{Kind: model.Buy, Symbol: symbol, Quantity: quantity})
}

// SellStock sells quantity shares of symbol at the current oracle price.
func (e *Engine) SellStock(ctx context.Context, playerID, gameID, symbol string, quantity int64) (*model.Transaction, error) {
	return e.Execute(ctx, playerID, gameID, model.OrderRequest{Kind: model.Sell, Symbol: symbol, Quantity: quantity})
}

// Execute runs one order and returns its ledger entry. A rejected order
// leaves the portfolio and the ledger untouched.
func (e *Engine) Execute(ctx context.Context, playerID, gameID string, req model.OrderRequest) (*model.Transaction, error) {
	start := time.Now()
	tx, err := e.execute(ctx, playerID, gameID, req)
	if err != nil {
		kind := string(req.Kind)
		if !req.Kind.Valid() {
			kind = "unknown"
		}
		metrics.OrdersTotal.WithLabelValues(kind, outcome(err)).Inc()
		e.log.Debug("order rejected",
			"player_id", playerID,
			"game_id", gameID,
			"kind", req.Kind,
			"symbol", req.Symbol,
			"qty", req.Quantity,
			"error", err,
		)
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(tx.Kind), "executed").Inc()
	metrics.OrderLatency.WithLabelValues(string(tx.Kind)).Observe(time.Since(start).Seconds())
	e.log.Info("order executed",
		"transaction_id", tx.ID,
		"player_id", tx.PlayerID,
		"game_id", tx.GameID,
		"kind", tx.Kind,
		"symbol", tx.Symbol,
		"qty", tx.Quantity,
		"price", tx.Price.String(),
		"amount", tx.Amount().String(),
	)
	if e.notifier != nil {
		e.notifier.OrderExecuted(*tx)
	}
	return tx, nil
}

func (e *Engine) execute(ctx context.Context, playerID, gameID string, req model.OrderRequest) (*model.Transaction, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	game, err := e.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := e.checkWindow(game); err != nil {
		return nil, err
	}
	p, err := e.loadPortfolio(ctx, playerID, gameID)
	if err != nil {
		return nil, err
	}
	// A sell that cannot be covered fails before pricing; re-checked under the lock.
	if req.Kind == model.Sell {
		if held := p.Quantity(req.Symbol); held < req.Quantity {
			return nil, fmt.Errorf("%w: hold %d %s, selling %d", ErrInsufficientHoldings, held, req.Symbol, req.Quantity)
		}
	}

	// Price outside the lock; the same quote is used for every attempt.
	price, err := e.oracle.Quote(ctx, req.Symbol)
	if err != nil {
		return nil, priceError(ctx, req.Symbol, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s quoted at %s", ErrPriceUnavailable, req.Symbol, price)
	}

	unlock := e.portfolioLocks.Lock(portfolioKey(playerID, gameID))
	defer unlock()

	for attempt := 0; attempt < e.casAttempts; attempt++ {
		if err := e.checkWindow(game); err != nil {
			return nil, err
		}
		p, err := e.loadPortfolio(ctx, playerID, gameID)
		if err != nil {
			return nil, err
		}
		if err := apply(p, req, price); err != nil {
			return nil, err
		}

		now := e.now().UTC()
		p.UpdatedAt = now
		tx := &model.Transaction{
			ID:         id.NewSequential(),
			PlayerID:   playerID,
			GameID:     gameID,
			Symbol:     req.Symbol,
			Quantity:   req.Quantity,
			Price:      price,
			Kind:       req.Kind,
			ExecutedAt: now,
		}

		err = e.commit(ctx, p, tx)
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.CASRetries.WithLabelValues("portfolio").Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return tx, nil
	}
	return nil, fmt.Errorf("%w: portfolio %s/%s kept changing", ErrConflict, playerID, gameID)
}

// apply checks funds or holdings and mutates p in memory.
func apply(p *model.Portfolio, req model.OrderRequest, price decimal.Decimal) error {
	amount := price.Mul(decimal.NewFromInt(req.Quantity))

	switch req.Kind {
	case model.Buy:
		if req.Quantity > math.MaxInt64-p.Quantity(req.Symbol) {
			return fmt.Errorf("%w: holding of %s would exceed %d shares", ErrValidation, req.Symbol, int64(math.MaxInt64))
		}
		if p.Cash.LessThan(amount) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, p.Cash)
		}
		p.Cash = p.Cash.Sub(amount)
		p.AdjustHolding(req.Symbol, req.Quantity)
	case model.Sell:
		if held := p.Quantity(req.Symbol); held < req.Quantity {
			return fmt.Errorf("%w: hold %d %s, selling %d", ErrInsufficientHoldings, held, req.Symbol, req.Quantity)
		}
		p.Cash = p.Cash.Add(amount)
		p.AdjustHolding(req.Symbol, -req.Quantity)
	default:
		return fmt.Errorf("%w: unknown order kind %q", ErrValidation, req.Kind)
	}
	return nil
}

// commit persists the portfolio and its ledger entry, atomically when the
// store supports it.
func (e *Engine) commit(ctx context.Context, p *model.Portfolio, tx *model.Transaction) error {
	if c, ok := e.store.(store.OrderCommitter); ok {
		if err := c.CommitOrder(ctx, p, tx); err != nil {
			return fmt.Errorf("commit order: %w", err)
		}
		return nil
	}

	if err := e.store.SavePortfolio(ctx, p); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	if err := e.store.AppendTransaction(ctx, tx); err != nil {
		e.log.Error("ledger append failed after portfolio save",
			"transaction_id", tx.ID,
			"player_id", tx.PlayerID,
			"game_id", tx.GameID,
			"kind", tx.Kind,
			"symbol", tx.Symbol,
			"qty", tx.Quantity,
			"price", tx.Price.String(),
			"executed_at", tx.ExecutedAt,
			"error", err,
		)
		return fmt.Errorf("append ledger entry %s: %w", tx.ID, err)
	}
	return nil
}

// outcome is the metrics label for a rejected order.
func outcome(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrGameNotOpen):
		return "not_open"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ErrPriceUnavailable):
		return "price_unavailable"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
