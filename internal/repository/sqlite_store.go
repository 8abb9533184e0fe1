package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	applogger "github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// SQLiteDialect is the embedded single-file backend.
var SQLiteDialect = Dialect{
	Name:        "sqlite",
	Upsert:      "INSERT OR REPLACE INTO",
	TradeInsert: "INSERT OR IGNORE INTO",
	Trades:      "warrant_trades",
	Schema: []string{
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS instrument_snapshots (
            symbol     TEXT    NOT NULL,
            last_close REAL    NOT NULL,
            volatility REAL    NOT NULL,
            as_of      INTEGER NOT NULL,
            PRIMARY KEY (symbol, as_of)
        )`,
		`CREATE TABLE IF NOT EXISTS warrant_trades (
            symbol TEXT    NOT NULL,
            ts     INTEGER NOT NULL,
            price  REAL    NOT NULL,
            volume REAL    NOT NULL
        )`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_warrant_trades ON warrant_trades (symbol, ts, price, volume)`,
		`CREATE TABLE IF NOT EXISTS pricing_results (
            run_id TEXT NOT NULL, symbol TEXT NOT NULL,
            spot REAL, strike REAL, volatility REAL, rate REAL, expiry REAL, ratio REAL,
            market_price REAL, mc_price REAL, mc_error REAL, cf_price REAL,
            delta REAL, edge REAL, fraction REAL, action TEXT, profit REAL,
            evaluated_at INTEGER NOT NULL,
            PRIMARY KEY (run_id, symbol)
        )`,
	},
}

// OpenSQLiteStore opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLiteStore(path string, l *applogger.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// one writer; also keeps :memory: on a single connection
	db.SetMaxOpenConns(1)
	return NewSQLStore(db, SQLiteDialect, l, true), nil
}
