package store

// PostgresSchema creates the tables used by PostgresStore. Safe to re-run.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS games (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	start_time   TIMESTAMPTZ NOT NULL,
	end_time     TIMESTAMPTZ NOT NULL,
	initial_cash NUMERIC NOT NULL CHECK (initial_cash >= 0),
	version      BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	CHECK (start_time < end_time)
);

CREATE INDEX IF NOT EXISTS idx_games_created_at ON games (created_at DESC, id);

CREATE TABLE IF NOT EXISTS game_players (
	game_id   TEXT NOT NULL REFERENCES games (id),
	player_id TEXT NOT NULL,
	position  INT NOT NULL,
	PRIMARY KEY (game_id, player_id)
);

CREATE TABLE IF NOT EXISTS portfolios (
	id         TEXT PRIMARY KEY,
	player_id  TEXT NOT NULL,
	game_id    TEXT NOT NULL REFERENCES games (id),
	cash       NUMERIC NOT NULL CHECK (cash >= 0),
	version    BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (player_id, game_id)
);

CREATE TABLE IF NOT EXISTS portfolio_holdings (
	portfolio_id TEXT NOT NULL REFERENCES portfolios (id),
	symbol       TEXT NOT NULL,
	quantity     BIGINT NOT NULL CHECK (quantity > 0),
	position     INT NOT NULL,
	PRIMARY KEY (portfolio_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	player_id   TEXT NOT NULL,
	game_id     TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	quantity    BIGINT NOT NULL CHECK (quantity > 0),
	price       NUMERIC NOT NULL CHECK (price > 0),
	kind        TEXT NOT NULL CHECK (kind IN ('buy', 'sell')),
	executed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions (player_id, game_id, id);
`

// SQLiteSchema is the SQLite dialect of PostgresSchema. Decimals and
// timestamps are stored as TEXT.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS games (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	start_time   TEXT NOT NULL,
	end_time     TEXT NOT NULL,
	initial_cash TEXT NOT NULL,
	version      INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_games_created_at ON games (created_at DESC, id);

CREATE TABLE IF NOT EXISTS game_players (
	game_id   TEXT NOT NULL REFERENCES games (id),
	player_id TEXT NOT NULL,
	position  INTEGER NOT NULL,
	PRIMARY KEY (game_id, player_id)
);

CREATE TABLE IF NOT EXISTS portfolios (
	id         TEXT PRIMARY KEY,
	player_id  TEXT NOT NULL,
	game_id    TEXT NOT NULL REFERENCES games (id),
	cash       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (player_id, game_id)
);

CREATE TABLE IF NOT EXISTS portfolio_holdings (
	portfolio_id TEXT NOT NULL REFERENCES portfolios (id),
	symbol       TEXT NOT NULL,
	quantity     INTEGER NOT NULL CHECK (quantity > 0),
	position     INTEGER NOT NULL,
	PRIMARY KEY (portfolio_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	player_id   TEXT NOT NULL,
	game_id     TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	quantity    INTEGER NOT NULL CHECK (quantity > 0),
	price       TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('buy', 'sell')),
	executed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions (player_id, game_id, id);
`
