package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/engine/internal/model"
)

var (
	_ Store          = (*PostgresStore)(nil)
	_ OrderCommitter = (*PostgresStore)(nil)
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies PostgresSchema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// --- Games ---

func (s *PostgresStore) CreateGame(ctx context.Context, g *model.Game) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO games (id, name, start_time, end_time, initial_cash, version, created_at)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)`,
			g.ID, g.Name, g.StartTime, g.EndTime, g.InitialCash.String(), g.Version, g.CreatedAt,
		)
		if err != nil {
			return mapWriteErr(fmt.Sprintf("game %s", g.ID), err)
		}
		return insertPlayers(ctx, tx, g)
	})
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	var cash string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, start_time, end_time, initial_cash::TEXT, version, created_at
		 FROM games WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.StartTime, &g.EndTime, &cash, &g.Version, &g.CreatedAt)
	if err != nil {
		return nil, mapReadErr(fmt.Sprintf("game %s", id), err)
	}
	if g.InitialCash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("game %s: parse initial_cash: %w", id, err)
	}

	rosters, err := loadRosters(ctx, s.pool, []string{id})
	if err != nil {
		return nil, err
	}
	g.Players = rosters[id]
	return &g, nil
}

func (s *PostgresStore) ListGames(ctx context.Context, skip, limit int) ([]model.Game, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM games`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count games: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, start_time, end_time, initial_cash::TEXT, version, created_at
		 FROM games ORDER BY created_at DESC, id
		 OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []model.Game{}
	var ids []string
	for rows.Next() {
		var g model.Game
		var cash string
		if err := rows.Scan(&g.ID, &g.Name, &g.StartTime, &g.EndTime, &cash, &g.Version, &g.CreatedAt); err != nil {
			return nil, 0, err
		}
		if g.InitialCash, err = decimal.NewFromString(cash); err != nil {
			return nil, 0, fmt.Errorf("game %s: parse initial_cash: %w", g.ID, err)
		}
		games = append(games, g)
		ids = append(ids, g.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	rosters, err := loadRosters(ctx, s.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range games {
		games[i].Players = rosters[games[i].ID]
	}
	return games, total, nil
}

func (s *PostgresStore) UpdateGame(ctx context.Context, g *model.Game) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE games SET version = version + 1 WHERE id = $1 AND version = $2`,
			g.ID, g.Version)
		if err != nil {
			return fmt.Errorf("update game %s: %w", g.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return missingOrConflict(ctx, tx, `SELECT EXISTS(SELECT 1 FROM games WHERE id = $1)`, g.ID)
		}
		return insertPlayers(ctx, tx, g)
	})
	if err != nil {
		return err
	}
	g.Version++
	return nil
}

// insertPlayers adds any roster entries not yet stored. Existing entries
// keep their original position.
func insertPlayers(ctx context.Context, q querier, g *model.Game) error {
	for i, playerID := range g.Players {
		if _, err := q.Exec(ctx,
			`INSERT INTO game_players (game_id, player_id, position)
			 VALUES ($1, $2, $3) ON CONFLICT (game_id, player_id) DO NOTHING`,
			g.ID, playerID, i); err != nil {
			return fmt.Errorf("add player %s to game %s: %w", playerID, g.ID, err)
		}
	}
	return nil
}

func loadRosters(ctx context.Context, q querier, gameIDs []string) (map[string][]string, error) {
	rosters := make(map[string][]string, len(gameIDs))
	if len(gameIDs) == 0 {
		return rosters, nil
	}
	rows, err := q.Query(ctx,
		`SELECT game_id, player_id FROM game_players
		 WHERE game_id = ANY($1) ORDER BY game_id, position`, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("load rosters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var gameID, playerID string
		if err := rows.Scan(&gameID, &playerID); err != nil {
			return nil, err
		}
		rosters[gameID] = append(rosters[gameID], playerID)
	}
	return rosters, rows.Err()
}

// --- Portfolios ---

func (s *PostgresStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO portfolios (id, player_id, game_id, cash, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
			p.ID, p.PlayerID, p.GameID, p.Cash.String(), p.Version, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return mapWriteErr(fmt.Sprintf("portfolio %s/%s", p.PlayerID, p.GameID), err)
		}
		return replaceHoldings(ctx, tx, p)
	})
}

func (s *PostgresStore) GetPortfolio(ctx context.Context, playerID, gameID string) (*model.Portfolio, error) {
	var p model.Portfolio
	var cash string

	err := s.pool.QueryRow(ctx,
		`SELECT id, player_id, game_id, cash::TEXT, version, created_at, updated_at
		 FROM portfolios WHERE player_id = $1 AND game_id = $2`, playerID, gameID).
		Scan(&p.ID, &p.PlayerID, &p.GameID, &cash, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapReadErr(fmt.Sprintf("portfolio %s/%s", playerID, gameID), err)
	}
	if p.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("portfolio %s: parse cash: %w", p.ID, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, quantity FROM portfolio_holdings
		 WHERE portfolio_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity); err != nil {
			return nil, err
		}
		p.Holdings = append(p.Holdings, h)
	}
	return &p, rows.Err()
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return savePortfolio(ctx, tx, p)
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

// CommitOrder writes the portfolio and the ledger entry in one transaction.
func (s *PostgresStore) CommitOrder(ctx context.Context, p *model.Portfolio, entry *model.Transaction) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := savePortfolio(ctx, tx, p); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, entry)
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

func savePortfolio(ctx context.Context, tx pgx.Tx, p *model.Portfolio) error {
	tag, err := tx.Exec(ctx,
		`UPDATE portfolios
		 SET cash = $3::NUMERIC, version = version + 1, updated_at = $4
		 WHERE id = $1 AND version = $2`,
		p.ID, p.Version, p.Cash.String(), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update portfolio %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, tx, `SELECT EXISTS(SELECT 1 FROM portfolios WHERE id = $1)`, p.ID)
	}
	return replaceHoldings(ctx, tx, p)
}

func replaceHoldings(ctx context.Context, q querier, p *model.Portfolio) error {
	if _, err := q.Exec(ctx, `DELETE FROM portfolio_holdings WHERE portfolio_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear holdings: %w", err)
	}
	for i, h := range p.Holdings {
		if _, err := q.Exec(ctx,
			`INSERT INTO portfolio_holdings (portfolio_id, symbol, quantity, position)
			 VALUES ($1, $2, $3, $4)`,
			p.ID, h.Symbol, h.Quantity, i); err != nil {
			return fmt.Errorf("insert holding %s: %w", h.Symbol, err)
		}
	}
	return nil
}

// --- Immutable ledger ---

func (s *PostgresStore) AppendTransaction(ctx context.Context, entry *model.Transaction) error {
	return insertTransaction(ctx, s.pool, entry)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, playerID, gameID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, player_id, game_id, symbol, quantity, price::TEXT, kind, executed_at
		 FROM transactions WHERE player_id = $1 AND game_id = $2 ORDER BY id`,
		playerID, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Transaction
	for rows.Next() {
		var e model.Transaction
		var price, kind string
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.GameID, &e.Symbol, &e.Quantity,
			&price, &kind, &e.ExecutedAt); err != nil {
			return nil, err
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s: parse price: %w", e.ID, err)
		}
		e.Kind = model.TransactionKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertTransaction(ctx context.Context, q querier, e *model.Transaction) error {
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (id, player_id, game_id, symbol, quantity, price, kind, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8)`,
		e.ID, e.PlayerID, e.GameID, e.Symbol, e.Quantity, e.Price.String(), string(e.Kind), e.ExecutedAt,
	)
	if err != nil {
		return mapWriteErr(fmt.Sprintf("transaction %s", e.ID), err)
	}
	return nil
}

// --- Error mapping ---

func mapReadErr(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func mapWriteErr(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("write %s: %w", what, err)
}

func missingOrConflict(ctx context.Context, q querier, existsSQL, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, existsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", id, ErrVersionConflict)
}
