package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/papertrade/engine/internal/model"
)

var (
	_ Store          = (*SQLiteStore)(nil)
	_ OrderCommitter = (*SQLiteStore)(nil)
)

// sqliteTime is fixed-width so TEXT ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store on a single SQLite file. Intended for
// single-node deployments; writes are serialized through one connection.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path, applies
// SQLiteSchema, and returns a ready-to-use store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies SQLiteSchema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("sqlite pragmas: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- Games ---

func (s *SQLiteStore) CreateGame(ctx context.Context, g *model.Game) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO games (id, name, start_time, end_time, initial_cash, version, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Name, fmtTime(g.StartTime), fmtTime(g.EndTime), g.InitialCash.String(),
			g.Version, fmtTime(g.CreatedAt),
		)
		if err != nil {
			return sqliteWriteErr(fmt.Sprintf("game %s", g.ID), err)
		}
		return sqliteInsertPlayers(ctx, tx, g)
	})
}

func (s *SQLiteStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_time, end_time, initial_cash, version, created_at
		 FROM games WHERE id = ?`, id)
	g, err := scanGame(row)
	if err != nil {
		return nil, sqliteReadErr(fmt.Sprintf("game %s", id), err)
	}
	rosters, err := sqliteRosters(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}
	g.Players = rosters[id]
	return g, nil
}

func (s *SQLiteStore) ListGames(ctx context.Context, skip, limit int) ([]model.Game, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count games: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, start_time, end_time, initial_cash, version, created_at
		 FROM games ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []model.Game{}
	var ids []string
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, 0, err
		}
		games = append(games, *g)
		ids = append(ids, g.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	rosters, err := sqliteRosters(ctx, s.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range games {
		games[i].Players = rosters[games[i].ID]
	}
	return games, total, nil
}

func (s *SQLiteStore) UpdateGame(ctx context.Context, g *model.Game) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE games SET version = version + 1 WHERE id = ? AND version = ?`, g.ID, g.Version)
		if err != nil {
			return fmt.Errorf("update game %s: %w", g.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sqliteMissingOrConflict(ctx, tx, `SELECT COUNT(*) FROM games WHERE id = ?`, g.ID)
		}
		return sqliteInsertPlayers(ctx, tx, g)
	})
	if err != nil {
		return err
	}
	g.Version++
	return nil
}

func sqliteInsertPlayers(ctx context.Context, q sqlExecer, g *model.Game) error {
	for i, playerID := range g.Players {
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO game_players (game_id, player_id, position) VALUES (?, ?, ?)`,
			g.ID, playerID, i); err != nil {
			return fmt.Errorf("add player %s to game %s: %w", playerID, g.ID, err)
		}
	}
	return nil
}

func sqliteRosters(ctx context.Context, q sqlExecer, gameIDs []string) (map[string][]string, error) {
	rosters := make(map[string][]string, len(gameIDs))
	if len(gameIDs) == 0 {
		return rosters, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(gameIDs)), ",")
	args := make([]any, len(gameIDs))
	for i, id := range gameIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		`SELECT game_id, player_id FROM game_players
		 WHERE game_id IN (`+placeholders+`) ORDER BY game_id, position`, args...)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(r rowScanner) (*model.Game, error) {
	var g model.Game
	var start, end, cash, created string
	if err := r.Scan(&g.ID, &g.Name, &start, &end, &cash, &g.Version, &created); err != nil {
		return nil, err
	}
	var err error
	if g.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if g.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if g.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if g.InitialCash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("game %s: parse initial_cash: %w", g.ID, err)
	}
	return &g, nil
}

// --- Portfolios ---

func (s *SQLiteStore) CreatePortfolio(ctx context.Context, p *model.Portfolio) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO portfolios (id, player_id, game_id, cash, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.PlayerID, p.GameID, p.Cash.String(), p.Version,
			fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
		)
		if err != nil {
			return sqliteWriteErr(fmt.Sprintf("portfolio %s/%s", p.PlayerID, p.GameID), err)
		}
		return sqliteReplaceHoldings(ctx, tx, p)
	})
}

func (s *SQLiteStore) GetPortfolio(ctx context.Context, playerID, gameID string) (*model.Portfolio, error) {
	var p model.Portfolio
	var cash, created, updated string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, player_id, game_id, cash, version, created_at, updated_at
		 FROM portfolios WHERE player_id = ? AND game_id = ?`, playerID, gameID).
		Scan(&p.ID, &p.PlayerID, &p.GameID, &cash, &p.Version, &created, &updated)
	if err != nil {
		return nil, sqliteReadErr(fmt.Sprintf("portfolio %s/%s", playerID, gameID), err)
	}
	if p.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("portfolio %s: parse cash: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, quantity FROM portfolio_holdings WHERE portfolio_id = ? ORDER BY position`, p.ID)
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

func (s *SQLiteStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	if err := s.withTx(ctx, func(tx *sql.Tx) error {
		return sqliteSavePortfolio(ctx, tx, p)
	}); err != nil {
		return err
	}
	p.Version++
	return nil
}

// CommitOrder writes the portfolio and the ledger entry in one transaction.
func (s *SQLiteStore) CommitOrder(ctx context.Context, p *model.Portfolio, entry *model.Transaction) error {
	if err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := sqliteSavePortfolio(ctx, tx, p); err != nil {
			return err
		}
		return sqliteInsertTransaction(ctx, tx, entry)
	}); err != nil {
		return err
	}
	p.Version++
	return nil
}

func sqliteSavePortfolio(ctx context.Context, tx *sql.Tx, p *model.Portfolio) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET cash = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		p.Cash.String(), fmtTime(p.UpdatedAt), p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update portfolio %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sqliteMissingOrConflict(ctx, tx, `SELECT COUNT(*) FROM portfolios WHERE id = ?`, p.ID)
	}
	return sqliteReplaceHoldings(ctx, tx, p)
}

func sqliteReplaceHoldings(ctx context.Context, q sqlExecer, p *model.Portfolio) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM portfolio_holdings WHERE portfolio_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clear holdings: %w", err)
	}
	for i, h := range p.Holdings {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO portfolio_holdings (portfolio_id, symbol, quantity, position) VALUES (?, ?, ?, ?)`,
			p.ID, h.Symbol, h.Quantity, i); err != nil {
			return fmt.Errorf("insert holding %s: %w", h.Symbol, err)
		}
	}
	return nil
}

// --- Immutable ledger ---

func (s *SQLiteStore) AppendTransaction(ctx context.Context, entry *model.Transaction) error {
	return sqliteInsertTransaction(ctx, s.db, entry)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, playerID, gameID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, player_id, game_id, symbol, quantity, price, kind, executed_at
		 FROM transactions WHERE player_id = ? AND game_id = ? ORDER BY id`, playerID, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.Transaction
	for rows.Next() {
		var e model.Transaction
		var price, kind, executed string
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.GameID, &e.Symbol, &e.Quantity,
			&price, &kind, &executed); err != nil {
			return nil, err
		}
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s: parse price: %w", e.ID, err)
		}
		e.Kind = model.TransactionKind(kind)
		if e.ExecutedAt, err = parseTime(executed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func sqliteInsertTransaction(ctx context.Context, q sqlExecer, e *model.Transaction) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (id, player_id, game_id, symbol, quantity, price, kind, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlayerID, e.GameID, e.Symbol, e.Quantity, e.Price.String(), string(e.Kind),
		fmtTime(e.ExecutedAt),
	)
	if err != nil {
		return sqliteWriteErr(fmt.Sprintf("transaction %s", e.ID), err)
	}
	return nil
}

// --- Helpers ---

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func sqliteReadErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func sqliteWriteErr(what string, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("write %s: %w", what, err)
}

func sqliteMissingOrConflict(ctx context.Context, q sqlExecer, countSQL, id string) error {
	var n int
	if err := q.QueryRowContext(ctx, countSQL, id).Scan(&n); err != nil {
		return fmt.Errorf("check %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", id, ErrVersionConflict)
}
