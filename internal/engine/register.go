package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/papertrade/engine/internal/id"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/model"
	"github.com/papertrade/engine/internal/store"
)

// RegisterPlayer creates the player's portfolio with the game's starting
// cash, then appends the player to the roster.
//
// The portfolio is written first: a portfolio missing from the roster is
// harmless and a repeat registration repairs it before reporting
// ErrAlreadyRegistered.
func (e *Engine) RegisterPlayer(ctx context.Context, gameID, playerID string) (*model.Portfolio, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrValidation)
	}

	unlock := e.gameLocks.Lock(gameID)
	defer unlock()

	game, err := e.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	p := &model.Portfolio{
		ID:        id.New(),
		PlayerID:  playerID,
		GameID:    gameID,
		Cash:      game.InitialCash,
		Holdings:  []model.Holding{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = e.store.CreatePortfolio(ctx, p)
	if errors.Is(err, store.ErrDuplicate) {
		if !game.HasPlayer(playerID) {
			if err := e.addToRoster(ctx, game, playerID); err != nil {
				return nil, err
			}
			e.log.Warn("roster entry repaired", "game_id", gameID, "player_id", playerID)
		}
		return nil, fmt.Errorf("%w: player %s in game %s", ErrAlreadyRegistered, playerID, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}

	if err := e.addToRoster(ctx, game, playerID); err != nil {
		e.log.Error("portfolio created but roster append failed",
			"game_id", gameID,
			"player_id", playerID,
			"portfolio_id", p.ID,
			"error", err,
		)
		return nil, err
	}

	metrics.Registrations.Inc()
	e.log.Info("player registered",
		"game_id", gameID,
		"player_id", playerID,
		"portfolio_id", p.ID,
		"cash", p.Cash.String(),
	)
	return p, nil
}

// addToRoster appends playerID to the game's roster, re-reading the game
// on version conflicts.
func (e *Engine) addToRoster(ctx context.Context, game *model.Game, playerID string) error {
	for attempt := 0; attempt < e.casAttempts; attempt++ {
		if attempt > 0 {
			var err error
			if game, err = e.loadGame(ctx, game.ID); err != nil {
				return err
			}
		}
		if !game.AddPlayer(playerID) {
			return nil
		}

		err := e.store.UpdateGame(ctx, game)
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.CASRetries.WithLabelValues("game").Inc()
			continue
		}
		if err != nil {
			return fmt.Errorf("update roster of game %s: %w", game.ID, err)
		}
		return nil
	}
	return fmt.Errorf("%w: roster of game %s kept changing", ErrConflict, game.ID)
}
