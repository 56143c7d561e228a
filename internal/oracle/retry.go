package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/metrics"
)

var _ Oracle = (*Retrying)(nil)

// Retrying retries transient failures of the wrapped oracle with
// exponential backoff. ErrPriceUnavailable and context errors are not
// retried. Once attempts are exhausted the last error is returned wrapped
// in ErrPriceUnavailable.
type Retrying struct {
	next        Oracle
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger
}

// NewRetrying wraps next. maxAttempts < 1 is treated as 1.
func NewRetrying(next Oracle, maxAttempts int, baseDelay time.Duration) *Retrying {
	return &Retrying{
		next:        next,
		maxAttempts: max(maxAttempts, 1),
		baseDelay:   baseDelay,
		log:         slog.Default().With("oracle", "retry"),
	}
}

func (r *Retrying) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.retry(ctx, func() error {
		var err error
		price, err = r.next.Quote(ctx, symbol)
		return err
	})
	return price, err
}

func (r *Retrying) QuoteBatch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var prices map[string]decimal.Decimal
	err := r.retry(ctx, func() error {
		var err error
		prices, err = r.next.QuoteBatch(ctx, symbols)
		return err
	})
	return prices, err
}

func (r *Retrying) retry(ctx context.Context, fn func() error) error {
	var err error
	delay := r.baseDelay

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrPriceUnavailable) {
			return err
		}
		// A per-call timeout is transient; the caller's deadline is not.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Don't sleep after the last failed attempt.
		if attempt < r.maxAttempts-1 {
			r.log.Warn("oracle call failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
			metrics.OracleRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
}
