package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/metrics"
)

var _ Oracle = (*AlpacaOracle)(nil)

// quoteClient is the subset of *marketdata.Client used here.
type quoteClient interface {
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
	GetLatestQuotes(symbols []string, req marketdata.GetLatestQuoteRequest) (map[string]marketdata.Quote, error)
}

// AlpacaConfig holds the market-data credentials and call settings.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	DataURL   string        // empty uses the SDK default
	Feed      string        // "iex" or "sip"; empty uses the account default
	Timeout   time.Duration // per call; zero disables
}

// AlpacaOracle prices symbols from Alpaca's latest-quote endpoints. The
// unit price is the ask, or the bid when no ask is posted.
type AlpacaOracle struct {
	client  quoteClient
	feed    marketdata.Feed
	timeout time.Duration
	log     *slog.Logger
}

// NewAlpacaOracle creates an oracle backed by the Alpaca market-data API.
func NewAlpacaOracle(cfg AlpacaConfig) *AlpacaOracle {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return newAlpacaOracle(marketdata.NewClient(opts), cfg)
}

func newAlpacaOracle(client quoteClient, cfg AlpacaConfig) *AlpacaOracle {
	return &AlpacaOracle{
		client:  client,
		feed:    marketdata.Feed(cfg.Feed),
		timeout: cfg.Timeout,
		log:     slog.Default().With("oracle", "alpaca"),
	}
}

func (o *AlpacaOracle) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	q, err := call(ctx, o.timeout, func() (*marketdata.Quote, error) {
		return o.client.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{Feed: o.feed})
	})
	observe("quote", start, err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest quote %s: %w", symbol, err)
	}
	if q == nil {
		return decimal.Zero, fmt.Errorf("%w: %s: no quote", ErrPriceUnavailable, symbol)
	}
	price, ok := quotePrice(*q)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s: empty book", ErrPriceUnavailable, symbol)
	}
	return price, nil
}

func (o *AlpacaOracle) QuoteBatch(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	start := time.Now()
	quotes, err := call(ctx, o.timeout, func() (map[string]marketdata.Quote, error) {
		return o.client.GetLatestQuotes(symbols, marketdata.GetLatestQuoteRequest{Feed: o.feed})
	})
	observe("quote_batch", start, err)
	if err != nil {
		return nil, fmt.Errorf("latest quotes (%d symbols): %w", len(symbols), err)
	}

	for _, sym := range symbols {
		q, ok := quotes[sym]
		if !ok {
			continue
		}
		if price, ok := quotePrice(q); ok {
			out[sym] = price
		} else {
			o.log.Debug("empty book", "symbol", sym)
		}
	}
	return out, nil
}

func quotePrice(q marketdata.Quote) (decimal.Decimal, bool) {
	if q.AskPrice > 0 {
		return decimal.NewFromFloat(q.AskPrice), true
	}
	if q.BidPrice > 0 {
		return decimal.NewFromFloat(q.BidPrice), true
	}
	return decimal.Zero, false
}

// call runs fn, which cannot be cancelled, and returns early if ctx ends
// or the timeout elapses first.
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.OracleLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
