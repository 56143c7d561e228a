package engine

import (
	"errors"

	"github.com/papertrade/engine/internal/oracle"
)

// Error kinds. Use errors.Is against these at the transport boundary.
var (
	ErrNotFound             = errors.New("engine: not found")
	ErrConflict             = errors.New("engine: conflict")
	ErrGameNotOpen          = errors.New("engine: game not open for trading")
	ErrInsufficientFunds    = errors.New("engine: insufficient funds")
	ErrInsufficientHoldings = errors.New("engine: insufficient holdings")
	ErrValidation           = errors.New("engine: invalid request")

	// ErrPriceUnavailable is the oracle's sentinel, re-exported.
	ErrPriceUnavailable = oracle.ErrPriceUnavailable
)

// Sub-kinds. Each also matches its parent kind under errors.Is.
var (
	ErrGameNotFound      error = &subKind{"engine: game not found", ErrNotFound}
	ErrPortfolioNotFound error = &subKind{"engine: portfolio not found", ErrNotFound}
	ErrAlreadyRegistered error = &subKind{"engine: player already registered", ErrConflict}
	ErrGameNotStarted    error = &subKind{"engine: game has not started", ErrGameNotOpen}
	ErrGameEnded         error = &subKind{"engine: game has ended", ErrGameNotOpen}
)

type subKind struct {
	msg  string
	kind error
}

func (e *subKind) Error() string { return e.msg }
func (e *subKind) Unwrap() error { return e.kind }
