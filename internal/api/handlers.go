// Package api exposes the game engine over HTTP.
//
// Player identity comes from the X-Player-ID header; authenticating that
// header is left to whatever sits in front of this service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/papertrade/engine/internal/engine"
	"github.com/papertrade/engine/internal/model"
)

// PlayerHeader carries the caller's player id.
const PlayerHeader = "X-Player-ID"

const (
	defaultPage     = 1
	defaultPageSize = 10
)

// Handler serves the game endpoints.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a Handler backed by e.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// Routes mounts the game endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/games", h.ListGames)
	r.Post("/games", h.CreateGame)
	r.Get("/games/{gameID}", h.GetGame)

	r.Group(func(r chi.Router) {
		r.Use(RequirePlayer)
		r.Post("/games/{gameID}/register", h.Register)
		r.Post("/games/{gameID}/buy", h.Buy)
		r.Post("/games/{gameID}/sell", h.Sell)
		r.Get("/games/{gameID}/portfolio", h.Portfolio)
		r.Get("/games/{gameID}/transactions", h.Transactions)
	})
}

// --- Request types ---

// OrderBody is the JSON body for POST /games/{gameID}/buy and /sell.
type OrderBody struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// --- Player identity ---

type ctxKey int

const playerKey ctxKey = iota

// RequirePlayer rejects requests without a player id header and stores
// the id in the request context.
func RequirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID := strings.TrimSpace(r.Header.Get(PlayerHeader))
		if playerID == "" {
			writeError(w, PlayerHeader+" header is required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey, playerID)))
	})
}

// PlayerID returns the id stored by RequirePlayer.
func PlayerID(ctx context.Context) string {
	id, _ := ctx.Value(playerKey).(string)
	return id
}

// --- HTTP Handlers ---

// ListGames handles GET /api/v1/games?page=&limit=
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		writeError(w, "page must be an integer", http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}

	result, err := h.engine.ListGames(r.Context(), page, limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateGame handles POST /api/v1/games
func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req model.NewGame
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	game, err := h.engine.CreateGame(r.Context(), req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

// GetGame handles GET /api/v1/games/{gameID}
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.engine.GetGame(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// Register handles POST /api/v1/games/{gameID}/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.RegisterPlayer(r.Context(), chi.URLParam(r, "gameID"), PlayerID(r.Context()))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Buy handles POST /api/v1/games/{gameID}/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.order(w, r, model.Buy)
}

// Sell handles POST /api/v1/games/{gameID}/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.order(w, r, model.Sell)
}

func (h *Handler) order(w http.ResponseWriter, r *http.Request, kind model.TransactionKind) {
	var body OrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.engine.Execute(r.Context(), PlayerID(r.Context()), chi.URLParam(r, "gameID"), model.OrderRequest{
		Kind:     kind,
		Symbol:   body.Symbol,
		Quantity: body.Quantity,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Portfolio handles GET /api/v1/games/{gameID}/portfolio
// Returns the caller's portfolio marked to market.
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.Valuation(r.Context(), PlayerID(r.Context()), chi.URLParam(r, "gameID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Transactions handles GET /api/v1/games/{gameID}/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.ListTransactions(r.Context(), PlayerID(r.Context()), chi.URLParam(r, "gameID"))
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// --- Helpers ---

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrConflict), errors.Is(err, engine.ErrGameNotOpen):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientFunds), errors.Is(err, engine.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrPriceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
