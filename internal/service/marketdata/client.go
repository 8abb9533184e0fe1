package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	drepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	upstream "github.com/danghungithp/chungquyen-VN/internal/service/metrics"
	"github.com/danghungithp/chungquyen-VN/internal/service/ratelimit"
	xhttp "github.com/danghungithp/chungquyen-VN/pkg/http"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

// limiterKey is the single bucket shared by all gateway endpoints.
const limiterKey = "gateway"

// Client talks to the market data gateway REST API.
type Client struct {
	http    *xhttp.Client
	baseURL string
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

// New builds a gateway client. limiter may be nil.
func New(baseURL, apiKey string, timeout time.Duration, limiter *ratelimit.Limiter, log *logger.Logger) *Client {
	upstream.Register()
	return &Client{
		http: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithHeader("X-API-Key", apiKey),
		),
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
		log:     log,
	}
}

type instrumentsResponse struct {
	Data []struct {
		Symbol string `json:"symbol"`
	} `json:"data"`
}

type historyResponse struct {
	Symbol string `json:"symbol"`
	Data   []struct {
		Time  string  `json:"time"`
		Close float64 `json:"close"`
	} `json:"data"`
}

type quoteResponse struct {
	Symbol          string  `json:"symbol"`
	Underlying      string  `json:"underlying"`
	Price           float64 `json:"price"`
	Strike          float64 `json:"strike"`
	ConversionRatio float64 `json:"conversion_ratio"`
	Expiry          string  `json:"expiry"`
}

type tradesResponse struct {
	Data []models.TradeMessage `json:"data"`
}

type fxResponse struct {
	Base  string  `json:"base"`
	Quote string  `json:"quote"`
	Rate  float64 `json:"rate"`
}

// Universe returns the listed warrant symbols, upper-cased and de-duplicated.
func (c *Client) Universe(ctx context.Context) ([]string, error) {
	var resp instrumentsResponse
	if err := c.get(ctx, "warrants", "/v1/warrants", nil, &resp); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		symbols = append(symbols, d.Symbol)
	}
	return util.NormalizeSymbols(symbols), nil
}

// History returns closes in [from, to] sorted by time. Rows with an
// unparseable time are skipped.
func (c *Client) History(ctx context.Context, symbol string, from, to time.Time, iv drepo.Interval) (*models.PriceSeries, error) {
	q := url.Values{
		"symbol":   {symbol},
		"from":     {from.Format(util.DateLayout)},
		"to":       {to.Format(util.DateLayout)},
		"interval": {string(drepo.NormalizeInterval(string(iv)))},
	}
	var resp historyResponse
	if err := c.get(ctx, "history", "/v1/history", q, &resp); err != nil {
		return nil, err
	}

	series := &models.PriceSeries{Symbol: symbol, Points: make([]models.PricePoint, 0, len(resp.Data))}
	skipped := 0
	for _, d := range resp.Data {
		t, ok := util.ParseTime(d.Time)
		if !ok {
			skipped++
			continue
		}
		series.Points = append(series.Points, models.PricePoint{Time: t, Close: d.Close})
	}
	sort.SliceStable(series.Points, func(i, j int) bool {
		return series.Points[i].Time.Before(series.Points[j].Time)
	})
	if skipped > 0 {
		c.log.Warn("history rows with bad time skipped",
			logger.String("symbol", symbol), logger.Int("skipped", skipped))
	}
	return series, nil
}

// Quote returns the current market price and terms of a warrant.
func (c *Client) Quote(ctx context.Context, symbol string) (*models.WarrantQuote, error) {
	var resp quoteResponse
	if err := c.get(ctx, "quote", "/v1/warrants/"+url.PathEscape(symbol)+"/quote", nil, &resp); err != nil {
		return nil, err
	}
	q := &models.WarrantQuote{
		Symbol:          symbol,
		Underlying:      strings.ToUpper(strings.TrimSpace(resp.Underlying)),
		Price:           resp.Price,
		Strike:          resp.Strike,
		ConversionRatio: resp.ConversionRatio,
	}
	if resp.Expiry != "" {
		exp, err := util.ParseDate(resp.Expiry)
		if err != nil {
			return nil, fmt.Errorf("%w: quote %s: expiry %q", models.ErrExternalFetch, symbol, resp.Expiry)
		}
		q.Expiry = exp
	}
	return q, nil
}

// Trades returns the intraday trades of day ordered by time.
func (c *Client) Trades(ctx context.Context, symbol string, day time.Time) ([]models.Trade, error) {
	q := url.Values{"symbol": {symbol}, "date": {day.Format(util.DateLayout)}}
	var resp tradesResponse
	if err := c.get(ctx, "trades", "/v1/trades", q, &resp); err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(resp.Data))
	for _, m := range resp.Data {
		t := m.Trade()
		if t.Symbol == "" {
			t.Symbol = symbol
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// FXRate returns units of quote per one unit of base.
func (c *Client) FXRate(ctx context.Context, base, quote string) (float64, error) {
	q := url.Values{"base": {base}, "quote": {quote}}
	var resp fxResponse
	if err := c.get(ctx, "fx", "/v1/fx", q, &resp); err != nil {
		return 0, err
	}
	if resp.Rate <= 0 {
		upstream.UpstreamErrors.WithLabelValues("fx").Inc()
		return 0, fmt.Errorf("%w: fx %s/%s: non-positive rate %v", models.ErrExternalFetch, base, quote, resp.Rate)
	}
	return resp.Rate, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values, dest any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return fmt.Errorf("%w: %s: %w", models.ErrExternalFetch, endpoint, err)
		}
	}
	start := time.Now()
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: q,
	}, dest)
	upstream.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		upstream.UpstreamErrors.WithLabelValues(endpoint).Inc()
		c.log.Debug("market data request failed",
			logger.String("endpoint", endpoint), logger.Error(err))
		return fmt.Errorf("%w: %s: %w", models.ErrExternalFetch, endpoint, err)
	}
	return nil
}

var _ drepo.MarketData = (*Client)(nil)
