package model

import (
	"errors"
	"fmt"

	"github.com/papertrade/engine/internal/ticker"
)

var (
	ErrInvalidKind     = errors.New("model: order kind must be buy or sell")
	ErrInvalidQuantity = errors.New("model: quantity must be a positive whole number")
)

// OrderRequest is a validated buy or sell instruction for one symbol.
type OrderRequest struct {
	Kind     TransactionKind `json:"kind"`
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
}

// Validate normalizes Symbol in place and rejects unknown kinds and
// non-positive quantities.
func (r *OrderRequest) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	sym, err := ticker.Parse(r.Symbol)
	if err != nil {
		return err
	}
	r.Symbol = sym
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, r.Quantity)
	}
	return nil
}
