package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/papertrade/engine/internal/api"
	"github.com/papertrade/engine/internal/config"
	"github.com/papertrade/engine/internal/engine"
	"github.com/papertrade/engine/internal/oracle"
	"github.com/papertrade/engine/internal/store"
)

func TestOpenStore_DefaultsToMemory(t *testing.T) {
	st, cleanup, err := openStore(context.Background(), config.Storage{})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if len(cleanup) != 0 {
		t.Errorf("cleanup funcs = %d, want 0", len(cleanup))
	}
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Errorf("store = %T, want *store.MemoryStore", st)
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := t.TempDir() + "/papertrade.db"
	st, cleanup, err := openStore(context.Background(), config.Storage{SQLitePath: path})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer runCleanup(cleanup)
	if _, ok := st.(*store.SQLiteStore); !ok {
		t.Errorf("store = %T, want *store.SQLiteStore", st)
	}
}

func TestNewOracle_Static(t *testing.T) {
	cfg := config.Default()
	cfg.Oracle.Source = config.OracleStatic
	cfg.Oracle.Prices = map[string]string{"AAPL": "150"}

	o, err := newOracle(cfg)
	if err != nil {
		t.Fatalf("newOracle: %v", err)
	}
	p, err := o.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if p.String() != "150" {
		t.Errorf("price = %s, want 150", p)
	}
}

func TestQuoteContext(t *testing.T) {
	ctx, cancel := quoteContext(context.Background(), config.Alpaca{Timeout: 0, MaxAttempts: 3})
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}
	if ctx.Err() != nil {
		t.Errorf("context already done: %v", ctx.Err())
	}

	ctx, cancel = quoteContext(context.Background(), config.Alpaca{Timeout: time.Second, MaxAttempts: 2})
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if left := time.Until(deadline); left <= 2*time.Second || left > 3*time.Second {
		t.Errorf("deadline in %v, want about 3s", left)
	}
}

func TestRouter_HealthAndCORS(t *testing.T) {
	eng := engine.New(store.NewMemoryStore(), oracle.NewStatic(nil))
	r := newRouter(config.Default().Server, api.NewHandler(eng), api.NewWSHub())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("health body = %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("OPTIONS", "/api/v1/games", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, api.PlayerHeader) {
		t.Errorf("allow headers = %q", got)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/games", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("list games status = %d, want 200", rr.Code)
	}
}
