package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	"github.com/danghungithp/chungquyen-VN/internal/service/ratelimit"
	"github.com/danghungithp/chungquyen-VN/internal/usecase"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
)

var now = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

type stubEval struct {
	in     models.PricingInputs
	market float64
	err    error
}

func (s *stubEval) Evaluate(_ context.Context, symbol string, in models.PricingInputs, market float64) (models.PricingResult, error) {
	s.in, s.market = in, market
	if s.err != nil {
		return models.PricingResult{}, s.err
	}
	return models.PricingResult{Symbol: symbol, Inputs: in, MarketPrice: market, MonteCarloPrice: 4.4, Action: models.ActionLong}, nil
}

type stubBatch struct {
	universe []string
	total    float64
	snapshot bool
	err      error
}

func (s *stubBatch) result() (*models.Portfolio, *models.BatchReport, error) {
	report := &models.BatchReport{RunID: "run-1", Succeeded: 1}
	if s.err != nil {
		report.Failures = map[string]int{models.KindInsufficientData: 2}
		return nil, report, s.err
	}
	pf := &models.Portfolio{
		Entries:         []models.PortfolioEntry{{Symbol: "AAA", Capital: s.total}},
		TotalInvestment: s.total,
		Currency:        "VND",
	}
	return pf, report, nil
}

func (s *stubBatch) RunBatch(_ context.Context, universe []string, total float64) (*models.Portfolio, *models.BatchReport, error) {
	s.universe, s.total = universe, total
	return s.result()
}

func (s *stubBatch) AnalyzeSnapshots(_ context.Context, total float64) (*models.Portfolio, *models.BatchReport, error) {
	s.snapshot, s.total = true, total
	return s.result()
}

type stubDownloader struct {
	day     time.Time
	symbols []string
}

func (s *stubDownloader) DownloadSnapshots(_ context.Context, universe []string) (*usecase.DownloadReport, error) {
	s.symbols = universe
	return &usecase.DownloadReport{Saved: len(universe)}, nil
}

func (s *stubDownloader) DownloadTrades(_ context.Context, universe []string, day time.Time) (*usecase.DownloadReport, error) {
	s.symbols, s.day = universe, day
	return &usecase.DownloadReport{Saved: 7}, nil
}

type stubMarket struct {
	series *models.PriceSeries
	fx     float64
	err    error
}

func (m *stubMarket) Universe(context.Context) ([]string, error) { return nil, nil }

func (m *stubMarket) History(context.Context, string, time.Time, time.Time, domrepo.Interval) (*models.PriceSeries, error) {
	return m.series, m.err
}

func (m *stubMarket) Quote(context.Context, string) (*models.WarrantQuote, error) {
	return nil, models.ErrExternalFetch
}

func (m *stubMarket) Trades(context.Context, string, time.Time) ([]models.Trade, error) {
	return nil, nil
}

func (m *stubMarket) FXRate(context.Context, string, string) (float64, error) { return m.fx, nil }

type fixture struct {
	e      *echo.Echo
	eval   *stubEval
	batch  *stubBatch
	dl     *stubDownloader
	market *stubMarket
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	f := &fixture{eval: &stubEval{}, batch: &stubBatch{}, dl: &stubDownloader{}, market: &stubMarket{fx: 0.00004}}
	h := NewWarrantHandler(logger.Nop(), f.eval, f.batch, f.dl, f.market, usecase.NewFXValuer(f.market), nil, limiter,
		HandlerConfig{FXBase: "VND", FXQuote: "USD", HistoryDays: 30})
	h.now = func() time.Time { return now }
	f.e = echo.New()
	h.RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, out
}

func errorCode(t *testing.T, out map[string]any) string {
	t.Helper()
	errs, ok := out["data"].([]any)
	if !ok || len(errs) == 0 {
		t.Fatalf("no error list in %v", out)
	}
	return errs[0].(map[string]any)["code"].(string)
}

func TestEvaluateEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, out := f.do(t, http.MethodPost, "/api/evaluate",
		`{"symbol":"CFPT2401","spot":100,"strike":100,"volatility":0.3,"market_price":3.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	if f.eval.market != 3.5 || f.eval.in.ConversionRatio != 1 || f.eval.in.Rate != 0.05 {
		t.Fatalf("inputs %+v market %v", f.eval.in, f.eval.market)
	}
	if got := f.eval.in.Expiry; got != 30.0/252 {
		t.Fatalf("expiry %v", got)
	}
}

func TestEvaluateKeepsExplicitZeros(t *testing.T) {
	f := newFixture(t, nil)
	rec, out := f.do(t, http.MethodPost, "/api/evaluate",
		`{"symbol":"X","spot":100,"strike":90,"volatility":0,"rate":0,"market_price":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	if f.eval.in.Rate != 0 || f.eval.in.Volatility != 0 {
		t.Fatalf("explicit zeros replaced: %+v", f.eval.in)
	}
}

func TestEvaluateValidation(t *testing.T) {
	cases := map[string]string{
		"zero market price":  `{"symbol":"X","spot":100,"strike":100,"volatility":0.3,"market_price":0}`,
		"missing volatility": `{"symbol":"X","spot":100,"strike":100,"market_price":3}`,
		"zero ratio":         `{"symbol":"X","spot":100,"strike":100,"volatility":0.3,"conversion_ratio":0,"market_price":3}`,
		"zero expiry":        `{"symbol":"X","spot":100,"strike":100,"volatility":0.3,"expiry_days":0,"market_price":3}`,
	}
	for name, body := range cases {
		f := newFixture(t, nil)
		if rec, _ := f.do(t, http.MethodPost, "/api/evaluate", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", name, rec.Code)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidParameter), http.StatusBadRequest, "ERR_INVALID_PARAMETER"},
		{models.ErrInsufficientData, http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
		{models.ErrAllocationUndefined, http.StatusUnprocessableEntity, "ERR_ALLOCATION_UNDEFINED"},
		{models.ErrExternalFetch, http.StatusBadGateway, "ERR_UPSTREAM"},
		{errors.New("boom"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		f := newFixture(t, nil)
		f.eval.err = tc.err
		rec, out := f.do(t, http.MethodPost, "/api/evaluate",
			`{"symbol":"X","spot":100,"strike":100,"volatility":0.3,"market_price":3}`)
		if rec.Code != tc.status {
			t.Errorf("%v: status %d, want %d", tc.err, rec.Code, tc.status)
			continue
		}
		if got := errorCode(t, out); got != tc.code {
			t.Errorf("%v: code %q, want %q", tc.err, got, tc.code)
		}
	}
}

func TestBatchEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, out := f.do(t, http.MethodPost, "/api/batch", `{"symbols":["AAA"],"total_investment":"1000000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	if f.batch.total != 1_000_000 || len(f.batch.universe) != 1 || f.batch.snapshot {
		t.Fatalf("batch called with %+v", f.batch)
	}
	data := out["data"].(map[string]any)
	val, ok := data["valuation"].(map[string]any)
	if !ok || val["amount"] != "40" {
		t.Fatalf("valuation %v", data["valuation"])
	}
}

func TestBatchFromSnapshots(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodPost, "/api/batch", `{"total_investment":"500","from_snapshots":true}`)
	if rec.Code != http.StatusOK || !f.batch.snapshot {
		t.Fatalf("status %d snapshot=%v", rec.Code, f.batch.snapshot)
	}
}

func TestBatchRejectsBadInvestment(t *testing.T) {
	f := newFixture(t, nil)
	for _, body := range []string{`{"total_investment":"abc"}`, `{"total_investment":"-1"}`, `{"total_investment":"1e400"}`, `{}`} {
		rec, _ := f.do(t, http.MethodPost, "/api/batch", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", body, rec.Code)
		}
	}
	if f.batch.total != 0 {
		t.Fatalf("batch ran with total %v", f.batch.total)
	}
}

func TestBatchAllocationUndefined(t *testing.T) {
	f := newFixture(t, nil)
	f.batch.err = models.ErrAllocationUndefined
	rec, out := f.do(t, http.MethodPost, "/api/batch", `{"total_investment":"1000"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", rec.Code)
	}
	params := out["data"].([]any)[0].(map[string]any)["params"].(map[string]any)
	if params["run_id"] != "run-1" {
		t.Fatalf("params %v", params)
	}
}

func TestBatchRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.New(0.001, 1))
	if rec, _ := f.do(t, http.MethodPost, "/api/batch", `{"total_investment":"1000"}`); rec.Code != http.StatusOK {
		t.Fatalf("first call status %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodPost, "/api/batch", `{"total_investment":"1000"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status %d", rec.Code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, out := f.do(t, http.MethodGet, "/api/quote?spot=100&strike=100&rate_percent=5&sigma=0.3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	price := out["data"].(map[string]any)["price"].(float64)
	if price < 4.3 || price > 4.5 {
		t.Fatalf("price %v", price)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/quote?spot=100&strike=100&expiry_date=03/06/2024", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status %d", rec.Code)
	}
}

func TestQuoteKeepsExplicitZeros(t *testing.T) {
	f := newFixture(t, nil)
	rec, out := f.do(t, http.MethodGet, "/api/quote?spot=110&strike=100&sigma=0&rate_percent=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %v", rec.Code, out)
	}
	data := out["data"].(map[string]any)
	inputs := data["inputs"].(map[string]any)
	if inputs["volatility"].(float64) != 0 || inputs["rate"].(float64) != 0 {
		t.Fatalf("explicit zeros replaced: %v", inputs)
	}
	if price := data["price"].(float64); math.Abs(price-10) > 1e-9 {
		t.Fatalf("intrinsic price %v, want 10", price)
	}

	rec, out = f.do(t, http.MethodGet, "/api/quote?spot=100&strike=100", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("defaults status %d", rec.Code)
	}
	inputs = out["data"].(map[string]any)["inputs"].(map[string]any)
	if inputs["volatility"].(float64) != 0.3 || math.Abs(inputs["rate"].(float64)-0.045) > 1e-12 {
		t.Fatalf("defaults not applied: %v", inputs)
	}
}

func TestSeriesEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.market.series = &models.PriceSeries{Symbol: "AAA"}
	for i := 0; i < 20; i++ {
		f.market.series.Points = append(f.market.series.Points, models.PricePoint{Time: now.AddDate(0, 0, i-20), Close: float64(i)})
	}
	rec, out := f.do(t, http.MethodGet, "/api/series/AAA?tail=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	data := out["data"].(map[string]any)
	if pts := data["points"].([]any); len(pts) != 5 || data["count"].(float64) != 20 {
		t.Fatalf("series %v", data)
	}

	f.market.err = models.ErrExternalFetch
	if rec, _ := f.do(t, http.MethodGet, "/api/series/AAA", ""); rec.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure status %d", rec.Code)
	}
}

func TestDownloadTradesEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodPost, "/api/trades/download", `{"symbols":["AAA"],"date":"2024-05-31"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if want := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC); !f.dl.day.Equal(want) {
		t.Fatalf("day %v", f.dl.day)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/trades/download", `{}`)
	if rec.Code != http.StatusOK || !f.dl.day.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("default day: status %d day %v", rec.Code, f.dl.day)
	}

	if rec, _ := f.do(t, http.MethodPost, "/api/trades/download", `{"date":"yesterday"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status %d", rec.Code)
	}
}

func TestDownloadSnapshotsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec, out := f.do(t, http.MethodPost, "/api/snapshots/download", `{"symbols":["AAA","BBB"]}`)
	if rec.Code != http.StatusOK || out["data"].(map[string]any)["saved"].(float64) != 2 {
		t.Fatalf("status %d body %v", rec.Code, out)
	}
}

func TestHealthWithoutStore(t *testing.T) {
	f := newFixture(t, nil)
	if rec, _ := f.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}
