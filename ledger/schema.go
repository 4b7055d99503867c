package ledger

const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	entry_date DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	original_quantity INTEGER NOT NULL CHECK (original_quantity > 0),
	remaining_quantity INTEGER NOT NULL CHECK (remaining_quantity >= 0),
	stop_loss_price REAL NOT NULL,
	highest_tier_reached INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED')),
	exit_date DATETIME,
	exit_price REAL,
	realized_pl_pct REAL,
	exit_reason TEXT,
	entry_score REAL NOT NULL DEFAULT 0,
	entry_pattern TEXT NOT NULL DEFAULT '',
	position_class TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(status, symbol, entry_date);
CREATE INDEX IF NOT EXISTS idx_positions_entry_date ON positions(entry_date);

CREATE TABLE IF NOT EXISTS partial_exits (
	position_id TEXT NOT NULL REFERENCES positions(id),
	target_label TEXT NOT NULL,
	exit_date DATETIME NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	exit_price REAL NOT NULL,
	realized_pct REAL NOT NULL,
	PRIMARY KEY (position_id, target_label)
);
`
