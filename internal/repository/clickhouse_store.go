package repository

import (
	pkgch "github.com/danghungithp/chungquyen-VN/pkg/clickhouse"
	applogger "github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// ClickHouseDialect creates MergeTree tables.
var ClickHouseDialect = Dialect{
	Name:        "clickhouse",
	Upsert:      "INSERT INTO",
	TradeInsert: "INSERT INTO",
	// duplicates collapse on merge; FINAL hides unmerged ones
	Trades: "warrant_trades FINAL",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS instrument_snapshots (
            symbol     LowCardinality(String),
            last_close Float64,
            volatility Float64,
            as_of      Int64
        ) ENGINE = ReplacingMergeTree ORDER BY (symbol, as_of)`,
		`CREATE TABLE IF NOT EXISTS warrant_trades (
            symbol LowCardinality(String),
            ts     Int64,
            price  Float64,
            volume Float64
        ) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts, price, volume)`,
		`CREATE TABLE IF NOT EXISTS pricing_results (
            run_id String, symbol LowCardinality(String),
            spot Float64, strike Float64, volatility Float64, rate Float64, expiry Float64, ratio Float64,
            market_price Float64, mc_price Float64, mc_error Float64, cf_price Float64,
            delta Float64, edge Float64, fraction Float64, action LowCardinality(String), profit Float64,
            evaluated_at Int64
        ) ENGINE = MergeTree ORDER BY (run_id, symbol)`,
	},
}

// NewClickHouseStore builds a store on an open client. The client stays
// owned by the caller.
func NewClickHouseStore(ch *pkgch.Client, l *applogger.Logger) *SQLStore {
	return NewSQLStore(ch.DB(), ClickHouseDialect, l, false)
}
