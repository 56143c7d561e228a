package oracle

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"
)

var _ Oracle = (*Static)(nil)

// Static serves fixed prices. Used for development runs and tests.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic creates a Static oracle seeded with prices. Non-positive
// prices are ignored.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for sym, p := range prices {
		s.Set(sym, p)
	}
	return s
}

// Set replaces the price of symbol. A non-positive price removes it.
func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !price.IsPositive() {
		delete(s.prices, symbol)
		return
	}
	s.prices[symbol] = price
}

func (s *Static) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	return p, nil
}

func (s *Static) QuoteBatch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if p, ok := s.prices[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

// Prices returns a copy of the configured prices.
func (s *Static) Prices() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.prices)
}
