package journal

// Schema is the sqlite3 schema. Ids are ULIDs, so ORDER BY id is time
// order.
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	cycle_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	sl REAL,
	tp REAL,
	confidence REAL NOT NULL,
	strategy TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	cycle_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	lots REAL NOT NULL,
	filled_lots REAL NOT NULL DEFAULT 0,
	price REAL NOT NULL,
	sl REAL,
	tp REAL,
	status TEXT NOT NULL,
	ticket INTEGER NOT NULL,
	retcode INTEGER NOT NULL,
	risk_amount REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	trade_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	lots REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_time ON orders(time);
CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
`

// PostgresSchema is Schema in Postgres types.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	time TIMESTAMPTZ NOT NULL,
	cycle_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	sl DOUBLE PRECISION,
	tp DOUBLE PRECISION,
	confidence DOUBLE PRECISION NOT NULL,
	strategy TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	time TIMESTAMPTZ NOT NULL,
	cycle_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	lots DOUBLE PRECISION NOT NULL,
	filled_lots DOUBLE PRECISION NOT NULL DEFAULT 0,
	price DOUBLE PRECISION NOT NULL,
	sl DOUBLE PRECISION,
	tp DOUBLE PRECISION,
	status TEXT NOT NULL,
	ticket BIGINT NOT NULL,
	retcode INTEGER NOT NULL,
	risk_amount DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	trade_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	lots DOUBLE PRECISION NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price DOUBLE PRECISION NOT NULL,
	open_time TIMESTAMPTZ,
	close_time TIMESTAMPTZ NOT NULL,
	realized_pl DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	time TIMESTAMPTZ NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_time ON orders(time);
CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
`
