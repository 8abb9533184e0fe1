package repository

import (
	"context"
	"testing"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	applogger "github.com/danghungithp/chungquyen-VN/pkg/logger"
)

func newMemStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLiteStore(":memory:", applogger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLatestSnapshotsPicksNewestPerSymbol(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	err := s.SaveSnapshots(ctx, []models.InstrumentRow{
		{Symbol: "CVNM2401", LastClose: 1.0, Volatility: 0.30, AsOf: d1},
		{Symbol: "CVNM2401", LastClose: 1.2, Volatility: 0.32, AsOf: d2},
		{Symbol: "CHPG2402", LastClose: 2.0, Volatility: 0.25, AsOf: d1},
		{Symbol: "", LastClose: 9, AsOf: d1},
	})
	if err != nil {
		t.Fatal(err)
	}
	// same key replaces
	if err := s.SaveSnapshots(ctx, []models.InstrumentRow{{Symbol: "CHPG2402", LastClose: 2.5, Volatility: 0.26, AsOf: d1}}); err != nil {
		t.Fatal(err)
	}

	rows, err := s.LatestSnapshots(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Symbol != "CHPG2402" || rows[0].LastClose != 2.5 {
		t.Fatalf("rows[0] = %+v", rows[0])
	}
	if rows[1].Symbol != "CVNM2401" || rows[1].LastClose != 1.2 || !rows[1].AsOf.Equal(d2) {
		t.Fatalf("rows[1] = %+v", rows[1])
	}
}

func TestTradeStatsWindow(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	trades := []models.Trade{
		{Symbol: "CVNM2401", Timestamp: day.Add(9 * time.Hour), Price: 1.00, Volume: 100},
		{Symbol: "CVNM2401", Timestamp: day.Add(10 * time.Hour), Price: 1.05, Volume: 250},
		{Symbol: "CVNM2401", Timestamp: day.Add(30 * time.Hour), Price: 1.50, Volume: 999},
		{Symbol: "CHPG2402", Timestamp: day.Add(9 * time.Hour), Price: 3.00, Volume: 10},
		{Symbol: "CVNM2401", Price: 7, Volume: 7},
	}
	if err := s.StoreTrades(ctx, trades); err != nil {
		t.Fatal(err)
	}

	st, err := s.TradeStats(ctx, "CVNM2401", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.TradeCount != 2 || st.VolumeSum != 350 || st.LastTradePrice != 1.05 {
		t.Fatalf("stats = %+v", st)
	}

	none, err := s.TradeStats(ctx, "CXXX0000", day, day.AddDate(0, 0, 1))
	if err != nil || none != nil {
		t.Fatalf("stats = %+v err = %v", none, err)
	}
}

func TestStoreTradesTwiceKeepsStats(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{Symbol: "CVNM2401", Timestamp: day.Add(9 * time.Hour), Price: 1.00, Volume: 100},
		{Symbol: "CVNM2401", Timestamp: day.Add(10 * time.Hour), Price: 1.05, Volume: 200},
	}
	// a re-download of the day, then the same trades from the stream
	for i := 0; i < 2; i++ {
		if err := s.StoreTrades(ctx, trades); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.StoreTrades(ctx, trades[1:]); err != nil {
		t.Fatal(err)
	}

	st, err := s.TradeStats(ctx, "CVNM2401", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.TradeCount != 2 || st.VolumeSum != 300 || st.LastTradePrice != 1.05 {
		t.Fatalf("stats = %+v", st)
	}

	// a new trade at the same instant with a different price is kept
	extra := models.Trade{Symbol: "CVNM2401", Timestamp: day.Add(10 * time.Hour), Price: 1.06, Volume: 200}
	if err := s.StoreTrades(ctx, []models.Trade{extra}); err != nil {
		t.Fatal(err)
	}
	if st, _ = s.TradeStats(ctx, "CVNM2401", day, day.AddDate(0, 0, 1)); st.TradeCount != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSaveResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	in := []models.PricingResult{
		{
			Symbol:          "CVNM2401",
			Inputs:          models.PricingInputs{Spot: 100, Strike: 100, Volatility: 0.3, Rate: 0.05, Expiry: 30.0 / 252, ConversionRatio: 1},
			MarketPrice:     4,
			MonteCarloPrice: 4.4,
			ClosedFormPrice: 4.42,
			Delta:           0.54,
			Edge:            0.1,
			SizingFraction:  0.1,
			Action:          models.ActionLong,
			ExpectedProfit:  0.4,
			EvaluatedAt:     at,
		},
	}
	if err := s.SaveResults(ctx, "run-1", in); err != nil {
		t.Fatal(err)
	}
	out, err := s.Results(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("results = %+v", out)
	}
	got := out[0]
	if got.Action != models.ActionLong || got.Inputs.Expiry != 30.0/252 || !got.EvaluatedAt.Equal(at) || got.MonteCarloPrice != 4.4 {
		t.Fatalf("result = %+v", got)
	}
	if other, _ := s.Results(ctx, "run-2"); len(other) != 0 {
		t.Fatalf("unexpected rows for other run: %+v", other)
	}
}

func TestEmptyWritesAreNoops(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)
	if err := s.StoreTrades(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshots(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Health(ctx); err != nil {
		t.Fatal(err)
	}
}
