// Package ticker handles equity ticker symbol parsing and validation.
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches US equity tickers: a leading letter, then up to nine
// letters or digits, optionally followed by a share-class suffix.
// Examples: AAPL, BRK.B, GOOGL
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}(\.[A-Z])?$`)

var (
	ErrEmpty         = errors.New("ticker: symbol is required")
	ErrInvalidSymbol = errors.New("ticker: invalid symbol format")
)

// Parse trims and upper-cases raw and validates the result.
func Parse(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" {
		return "", ErrEmpty
	}
	if !symbolRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return sym, nil
}

// ParseAll parses every symbol and drops duplicates, keeping first-seen order.
func ParseAll(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		sym, err := Parse(r)
		if err != nil {
			return nil, err
		}
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, nil
}
