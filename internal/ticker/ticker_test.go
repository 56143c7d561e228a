package ticker

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := map[string]string{
		"AAPL":   "AAPL",
		" msft ": "MSFT",
		"brk.b":  "BRK.B",
		"GOOGL":  "GOOGL",
		"X":      "X",
		"ABC1":   "ABC1",
	}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"1AAPL",
		"AA PL",
		"AAPL.",
		"AAPL.BB",
		"ABCDEFGHIJK", // too long
		"$TSLA",
	}
	for _, sym := range tests {
		_, err := Parse(sym)
		if !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("expected ErrInvalidSymbol for %q, got %v", sym, err)
		}
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := Parse("   "); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestParseAll_Dedupes(t *testing.T) {
	got, err := ParseAll([]string{"aapl", "MSFT", "AAPL"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("unexpected result: %v", got)
	}
}

func TestParseAll_Error(t *testing.T) {
	if _, err := ParseAll([]string{"AAPL", "??"}); err == nil {
		t.Error("expected error for invalid symbol")
	}
}
