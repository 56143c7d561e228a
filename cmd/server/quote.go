package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/papertrade/engine/internal/config"
	"github.com/papertrade/engine/internal/ticker"
)

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL...",
	Short: "Print current oracle prices for symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		symbols, err := ticker.ParseAll(args)
		if err != nil {
			return err
		}
		o, err := newOracle(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := quoteContext(cmd.Context(), cfg.Alpaca)
		defer cancel()

		prices, err := o.QuoteBatch(ctx, symbols)
		if err != nil {
			return err
		}

		sort.Strings(symbols)
		out := cmd.OutOrStdout()
		for _, sym := range symbols {
			if p, ok := prices[sym]; ok {
				fmt.Fprintf(out, "%-8s %s\n", sym, p.StringFixed(2))
			} else {
				fmt.Fprintf(out, "%-8s unavailable\n", sym)
			}
		}
		return nil
	},
}

// quoteContext bounds a quote command by every retry attempt. A zero
// timeout means no deadline.
func quoteContext(parent context.Context, cfg config.Alpaca) (context.Context, context.CancelFunc) {
	if cfg.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, cfg.Timeout*time.Duration(cfg.MaxAttempts+1))
}
