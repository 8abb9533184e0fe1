package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	applogger "github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// insertChunk bounds rows per multi-row INSERT.
const insertChunk = 1000

// Dialect carries the backend specific SQL of a SnapshotStore.
type Dialect struct {
	Name   string
	Schema []string
	// Upsert prefixes snapshot inserts.
	Upsert string
	// TradeInsert prefixes trade inserts and must skip rows already stored.
	TradeInsert string
	// Trades is the FROM clause of trade reads.
	Trades string
}

// SQLStore implements SnapshotStore over database/sql. Timestamps are
// stored as unix milliseconds.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	l       *applogger.Logger
	owned   bool
}

// NewSQLStore wraps db. The store closes db on Close when owned is true.
func NewSQLStore(db *sql.DB, d Dialect, l *applogger.Logger, owned bool) *SQLStore {
	return &SQLStore{db: db, dialect: d, l: l, owned: owned}
}

func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) SaveSnapshots(ctx context.Context, rows []models.InstrumentRow) error {
	args := make([][]any, 0, len(rows))
	for _, r := range rows {
		if r.Symbol == "" {
			continue
		}
		args = append(args, []any{r.Symbol, r.LastClose, r.Volatility, r.AsOf.UnixMilli()})
	}
	return s.insert(ctx, "save_snapshots",
		s.dialect.Upsert+" instrument_snapshots (symbol, last_close, volatility, as_of)", 4, args)
}

// LatestSnapshots returns the newest row per symbol ordered by symbol.
func (s *SQLStore) LatestSnapshots(ctx context.Context) ([]models.InstrumentRow, error) {
	const q = `
        SELECT s.symbol, s.last_close, s.volatility, s.as_of
        FROM instrument_snapshots s
        INNER JOIN (
            SELECT symbol, max(as_of) AS latest FROM instrument_snapshots GROUP BY symbol
        ) l ON s.symbol = l.symbol AND s.as_of = l.latest
        ORDER BY s.symbol ASC
    `
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.logErr("latest_snapshots query error", err)
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.InstrumentRow
	seen := make(map[string]bool)
	for rows.Next() {
		var r models.InstrumentRow
		var asOf int64
		if err := rows.Scan(&r.Symbol, &r.LastClose, &r.Volatility, &asOf); err != nil {
			s.logErr("latest_snapshots scan error", err)
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		// unmerged duplicates on ClickHouse
		if seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		r.AsOf = time.UnixMilli(asOf).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.logErr("latest_snapshots rows error", err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("latest snapshots loaded",
		applogger.String("backend", s.dialect.Name),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

func (s *SQLStore) StoreTrades(ctx context.Context, trades []models.Trade) error {
	args := make([][]any, 0, len(trades))
	for _, t := range trades {
		if t.Symbol == "" || t.Timestamp.IsZero() {
			continue
		}
		args = append(args, []any{t.Symbol, t.Timestamp.UnixMilli(), t.Price, t.Volume})
	}
	return s.insert(ctx, "store_trades", s.dialect.TradeInsert+" warrant_trades (symbol, ts, price, volume)", 4, args)
}

// TradeStats summarizes trades in [from, to). It returns nil when there are none.
// A trade is identified by (symbol, ts, price, volume), so storing the same day
// twice does not change the result.
func (s *SQLStore) TradeStats(ctx context.Context, symbol string, from, to time.Time) (*models.TradeStats, error) {
	agg := `SELECT count(*), coalesce(sum(volume), 0) FROM ` + s.dialect.Trades + ` WHERE symbol = ? AND ts >= ? AND ts < ?`
	var (
		n   int64
		vol float64
	)
	f, t := from.UnixMilli(), to.UnixMilli()
	if err := s.db.QueryRowContext(ctx, agg, symbol, f, t).Scan(&n, &vol); err != nil {
		s.logErr("trade_stats query error", err, applogger.String("symbol", symbol))
		return nil, fmt.Errorf("trade stats: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	last := `SELECT price FROM ` + s.dialect.Trades + ` WHERE symbol = ? AND ts >= ? AND ts < ? ORDER BY ts DESC LIMIT 1`
	st := &models.TradeStats{TradeCount: int(n), VolumeSum: vol}
	if err := s.db.QueryRowContext(ctx, last, symbol, f, t).Scan(&st.LastTradePrice); err != nil {
		return nil, fmt.Errorf("last trade: %w", err)
	}
	return st, nil
}

func (s *SQLStore) SaveResults(ctx context.Context, runID string, results []models.PricingResult) error {
	args := make([][]any, 0, len(results))
	for _, r := range results {
		in := r.Inputs
		args = append(args, []any{
			runID, r.Symbol,
			in.Spot, in.Strike, in.Volatility, in.Rate, in.Expiry, in.ConversionRatio,
			r.MarketPrice, r.MonteCarloPrice, r.MonteCarloError, r.ClosedFormPrice,
			r.Delta, r.Edge, r.SizingFraction, string(r.Action), r.ExpectedProfit,
			r.EvaluatedAt.UnixMilli(),
		})
	}
	return s.insert(ctx, "save_results", `INSERT INTO pricing_results (run_id, symbol,
        spot, strike, volatility, rate, expiry, ratio,
        market_price, mc_price, mc_error, cf_price,
        delta, edge, fraction, action, profit, evaluated_at)`, 18, args)
}

// Results returns the stored results of one run ordered by symbol.
func (s *SQLStore) Results(ctx context.Context, runID string) ([]models.PricingResult, error) {
	const q = `SELECT symbol, spot, strike, volatility, rate, expiry, ratio,
        market_price, mc_price, mc_error, cf_price, delta, edge, fraction, action, profit, evaluated_at
        FROM pricing_results WHERE run_id = ? ORDER BY symbol ASC`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	defer rows.Close()

	var out []models.PricingResult
	for rows.Next() {
		var (
			r      models.PricingResult
			action string
			at     int64
		)
		in := &r.Inputs
		if err := rows.Scan(&r.Symbol, &in.Spot, &in.Strike, &in.Volatility, &in.Rate, &in.Expiry, &in.ConversionRatio,
			&r.MarketPrice, &r.MonteCarloPrice, &r.MonteCarloError, &r.ClosedFormPrice,
			&r.Delta, &r.Edge, &r.SizingFraction, &action, &r.ExpectedProfit, &at); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Action = models.Action(action)
		r.EvaluatedAt = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// insert writes rows with multi-row VALUES statements of at most insertChunk rows.
func (s *SQLStore) insert(ctx context.Context, op, head string, cols int, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	for lo := 0; lo < len(rows); lo += insertChunk {
		hi := min(lo+insertChunk, len(rows))
		values := make([]string, 0, hi-lo)
		args := make([]any, 0, (hi-lo)*cols)
		for _, r := range rows[lo:hi] {
			values = append(values, tuple)
			args = append(args, r...)
		}
		q := head + " VALUES " + strings.Join(values, ",")
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.logErr(op+" error", err, applogger.Int("rows", hi-lo))
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	s.l.Debug(op+" ok",
		applogger.String("backend", s.dialect.Name),
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (s *SQLStore) logErr(msg string, err error, fields ...applogger.Field) {
	fields = append(fields, applogger.String("backend", s.dialect.Name), applogger.Error(err))
	s.l.Error(msg, fields...)
}

var _ domrepo.SnapshotStore = (*SQLStore)(nil)
