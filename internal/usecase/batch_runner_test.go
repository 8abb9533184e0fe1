package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	"github.com/danghungithp/chungquyen-VN/internal/services/sizing"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/metrics"
)

func quotedMarket(symbols ...string) *fakeMarket {
	m := newFakeMarket()
	m.universe = symbols
	for i, s := range symbols {
		m.history[s] = series(s, 120)
		m.quotes[s] = &models.WarrantQuote{Symbol: s, Price: 1 + 0.25*float64(i)}
	}
	return m
}

func itemFor(t *testing.T, r *models.BatchReport, symbol string) models.ItemResult {
	t.Helper()
	for _, it := range r.Items {
		if it.Symbol == symbol {
			return it
		}
	}
	t.Fatalf("no item for %s", symbol)
	return models.ItemResult{}
}

func TestRunBatchAllocatesAcrossUniverse(t *testing.T) {
	m := quotedMarket("AAA", "BBB", "CCC")
	store, pub := newMemStore(), &memPublisher{}
	r := newTestRunner(testSettings(), m, store, pub)

	pf, report, err := r.RunBatch(context.Background(), nil, 1_000_000)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 0 {
		t.Fatalf("succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	if len(pf.Entries) != 3 {
		t.Fatalf("entries %d", len(pf.Entries))
	}
	if math.Abs(pf.AllocatedTotal()-1_000_000) > 1 {
		t.Fatalf("allocated %v", pf.AllocatedTotal())
	}
	for i := 1; i < len(pf.Entries); i++ {
		if pf.Entries[i-1].Result.ExpectedProfit < pf.Entries[i].Result.ExpectedProfit {
			t.Fatal("entries not ranked by expected profit")
		}
	}
	if pf.Currency != "VND" {
		t.Fatalf("currency %q", pf.Currency)
	}
	if got := len(store.results[report.RunID]); got != 3 {
		t.Fatalf("saved %d results", got)
	}
	if len(pub.outcomes) != 1 || pub.outcomes[0].Error != "" {
		t.Fatalf("outcomes %+v", pub.outcomes)
	}
}

func TestRunBatchSkipsShortHistory(t *testing.T) {
	m := quotedMarket("AAA", "BBB")
	m.history["BBB"] = series("BBB", 20)
	r := newTestRunner(testSettings(), m, nil, nil)

	pf, report, err := r.RunBatch(context.Background(), []string{"aaa", " bbb "}, 1000)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	bad := itemFor(t, report, "BBB")
	if bad.Status != models.ItemFailed || bad.Kind != models.KindInsufficientData {
		t.Fatalf("BBB item %+v", bad)
	}
	if report.Failures[models.KindInsufficientData] != 1 {
		t.Fatalf("failures %v", report.Failures)
	}
	if len(pf.Entries) != 1 || pf.Entries[0].Symbol != "AAA" {
		t.Fatalf("entries %+v", pf.Entries)
	}
}

func TestRunBatchLastCloseMarketLeavesAllocationUndefined(t *testing.T) {
	m := quotedMarket("AAA", "BBB")
	pub := &memPublisher{}
	settings := testSettings()
	settings.QuoteMarket = false
	r := newTestRunner(settings, m, nil, pub)

	pf, report, err := r.RunBatch(context.Background(), nil, 1000)
	if !errors.Is(err, models.ErrAllocationUndefined) {
		t.Fatalf("want allocation undefined, got %v", err)
	}
	if pf != nil {
		t.Fatal("portfolio returned with error")
	}
	if report == nil || report.Succeeded != 2 {
		t.Fatalf("report %+v", report)
	}
	if m.calls["quote:AAA"] != 0 {
		t.Fatal("quote fetched in last_close mode")
	}
	if len(pub.outcomes) != 1 || pub.outcomes[0].Error == "" {
		t.Fatalf("outcome not published with error: %+v", pub.outcomes)
	}
}

func TestRunBatchNonPositiveFractionSumIsUndefined(t *testing.T) {
	m := quotedMarket("AAA", "BBB")
	store, pub := newMemStore(), &memPublisher{}
	seed := uint64(42)
	eval := NewEvaluator(sizing.FixedProbabilityPolicy{WinProb: 0.4, LossProb: 0.6, PayoffRatio: 1}, 5000, &seed)
	eval.now = func() time.Time { return testNow }
	r := NewBatchRunner(testSettings(), m, constVol{v: 0.3}, eval, store, pub, metrics.Noop{}, logger.Nop())
	r.now = func() time.Time { return testNow }

	pf, report, err := r.RunBatch(context.Background(), nil, 1000)
	if !errors.Is(err, models.ErrAllocationUndefined) {
		t.Fatalf("want allocation undefined, got %v", err)
	}
	if pf != nil {
		t.Fatalf("portfolio returned: %+v", pf)
	}
	if report == nil || report.Succeeded != 2 {
		t.Fatalf("report %+v", report)
	}
	for _, it := range report.Items {
		if it.Result == nil || it.Result.ExpectedProfit <= 0 || it.Result.SizingFraction >= 0 {
			t.Fatalf("%s: want positive profit and negative fraction, got %+v", it.Symbol, it.Result)
		}
	}
	if len(pub.outcomes) != 1 || pub.outcomes[0].Error == "" {
		t.Fatalf("outcome not published with error: %+v", pub.outcomes)
	}
}

func TestRunBatchZeroQuoteIsInvalid(t *testing.T) {
	m := quotedMarket("AAA", "BBB")
	m.quotes["BBB"].Price = 0
	r := newTestRunner(testSettings(), m, nil, nil)

	_, report, err := r.RunBatch(context.Background(), nil, 1000)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if it := itemFor(t, report, "BBB"); it.Kind != models.KindInvalidParameter {
		t.Fatalf("BBB kind %q", it.Kind)
	}
}

func TestRunBatchQuoteTermsOverrideDefaults(t *testing.T) {
	m := quotedMarket("CW1")
	m.history["UND"] = series("UND", 120)
	delete(m.history, "CW1")
	m.quotes["CW1"] = &models.WarrantQuote{
		Symbol: "CW1", Underlying: "UND", Price: 0.5,
		Strike: 90, ConversionRatio: 4, Expiry: testNow.AddDate(0, 3, 0),
	}
	r := newTestRunner(testSettings(), m, nil, nil)

	_, report, err := r.RunBatch(context.Background(), nil, 1000)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	res := itemFor(t, report, "CW1").Result
	if res == nil {
		t.Fatal("no result")
	}
	if res.Inputs.Strike != 90 || res.Inputs.ConversionRatio != 4 {
		t.Fatalf("inputs %+v", res.Inputs)
	}
	if res.Inputs.Expiry <= 0.2 || res.Inputs.Expiry >= 0.3 {
		t.Fatalf("expiry %v", res.Inputs.Expiry)
	}
	if res.MarketPrice != 0.5 {
		t.Fatalf("market %v", res.MarketPrice)
	}
	if m.calls["history:UND"] != 1 {
		t.Fatal("underlying history not fetched")
	}
}

func TestRunBatchReproducibleAcrossWorkerCounts(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	run := func(workers int) map[string]float64 {
		settings := testSettings()
		settings.Workers = workers
		_, report, err := newTestRunner(settings, quotedMarket(symbols...), nil, nil).RunBatch(context.Background(), nil, 1000)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		out := map[string]float64{}
		for _, it := range report.Items {
			out[it.Symbol] = it.Result.MonteCarloPrice
		}
		return out
	}
	one, many := run(1), run(5)
	for s, p := range one {
		if many[s] != p {
			t.Fatalf("%s: %v vs %v", s, p, many[s])
		}
	}
}

func TestRunBatchItemTimeout(t *testing.T) {
	m := quotedMarket("AAA", "SLOW")
	m.delay["SLOW"] = time.Second
	settings := testSettings()
	settings.ItemTimeout = 50 * time.Millisecond
	r := newTestRunner(settings, m, nil, nil)

	_, report, err := r.RunBatch(context.Background(), nil, 1000)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if it := itemFor(t, report, "SLOW"); it.Kind != models.KindTimeout {
		t.Fatalf("SLOW kind %q (%s)", it.Kind, it.Reason)
	}
	if it := itemFor(t, report, "AAA"); it.Status != models.ItemOK {
		t.Fatalf("AAA %+v", it)
	}
}

func TestRunBatchEmptyUniverse(t *testing.T) {
	r := newTestRunner(testSettings(), newFakeMarket(), nil, nil)
	if _, _, err := r.RunBatch(context.Background(), []string{" "}, 1000); !errors.Is(err, models.ErrAllocationUndefined) {
		t.Fatalf("want allocation undefined, got %v", err)
	}
}

func TestRunBatchUniverseFetchFails(t *testing.T) {
	m := newFakeMarket()
	m.err["universe"] = models.ErrExternalFetch
	r := newTestRunner(testSettings(), m, nil, nil)
	if _, _, err := r.RunBatch(context.Background(), nil, 1000); !errors.Is(err, models.ErrExternalFetch) {
		t.Fatalf("want external fetch, got %v", err)
	}
}

func TestAnalyzeSnapshotsAttachesTrades(t *testing.T) {
	m := quotedMarket("AAA", "BBB")
	store := newMemStore()
	store.snapshots = []models.InstrumentRow{
		{Symbol: "AAA", LastClose: 100, Volatility: 0.3, AsOf: testNow},
		{Symbol: "BBB", LastClose: 50, Volatility: 0.4, AsOf: testNow},
	}
	store.stats["AAA"] = &models.TradeStats{VolumeSum: 1200, TradeCount: 3, LastTradePrice: 1.1}
	r := newTestRunner(testSettings(), m, store, nil)

	pf, report, err := r.AnalyzeSnapshots(context.Background(), 1000)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Succeeded != 2 {
		t.Fatalf("succeeded %d", report.Succeeded)
	}
	a := itemFor(t, report, "AAA")
	if a.Trades == nil || a.Trades.TradeCount != 3 {
		t.Fatalf("AAA trades %+v", a.Trades)
	}
	if a.Volatility == nil || a.Volatility.Model != "snapshot" {
		t.Fatalf("AAA volatility %+v", a.Volatility)
	}
	for _, e := range pf.Entries {
		if e.Symbol == "AAA" && e.Trades == nil {
			t.Fatal("portfolio entry lost trade stats")
		}
	}
	if m.calls["history:AAA"] != 0 {
		t.Fatal("snapshot analysis fetched history")
	}
}

func TestAnalyzeSnapshotsRequiresRows(t *testing.T) {
	r := newTestRunner(testSettings(), newFakeMarket(), newMemStore(), nil)
	if _, _, err := r.AnalyzeSnapshots(context.Background(), 1000); !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("want insufficient data, got %v", err)
	}
	r = newTestRunner(testSettings(), newFakeMarket(), nil, nil)
	if _, _, err := r.AnalyzeSnapshots(context.Background(), 1000); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want invalid parameter, got %v", err)
	}
}
