// Package oracle supplies current unit prices for equity symbols.
package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when no usable price exists for a symbol
// or the price source could not be reached.
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Oracle resolves symbols to current unit prices. Returned prices are
// always strictly positive.
type Oracle interface {
	// Quote returns the current unit price of symbol.
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)

	// QuoteBatch returns prices for every requested symbol. A symbol with no
	// usable price is absent from the map; callers decide whether that is
	// fatal.
	QuoteBatch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
