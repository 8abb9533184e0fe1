package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	"github.com/danghungithp/chungquyen-VN/internal/service/cache"
	upstream "github.com/danghungithp/chungquyen-VN/internal/service/metrics"
	applogger "github.com/danghungithp/chungquyen-VN/pkg/logger"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

// CachedMarketData is a read-through cache in front of a MarketData source.
// Cache failures are logged and fall through to the source.
type CachedMarketData struct {
	next  domrepo.MarketData
	cache cache.BytesCache
	codec *cache.Codec
	ttl   time.Duration
	l     *applogger.Logger
	now   func() time.Time
}

func NewCachedMarketData(next domrepo.MarketData, c cache.BytesCache, codec *cache.Codec, ttl time.Duration, l *applogger.Logger) *CachedMarketData {
	upstream.Register()
	return &CachedMarketData{next: next, cache: c, codec: codec, ttl: ttl, l: l, now: time.Now}
}

func (c *CachedMarketData) Universe(ctx context.Context) ([]string, error) {
	var out []string
	err := c.through(ctx, "universe", c.ttl, &out, func() (any, error) {
		return c.next.Universe(ctx)
	})
	return out, err
}

func (c *CachedMarketData) History(ctx context.Context, symbol string, from, to time.Time, iv domrepo.Interval) (*models.PriceSeries, error) {
	key := fmt.Sprintf("history:%s:%s:%s:%s", symbol, from.Format(util.DateLayout), to.Format(util.DateLayout), iv)
	var out models.PriceSeries
	err := c.through(ctx, key, c.ttl, &out, func() (any, error) {
		return c.next.History(ctx, symbol, from, to, iv)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Quote is never cached.
func (c *CachedMarketData) Quote(ctx context.Context, symbol string) (*models.WarrantQuote, error) {
	return c.next.Quote(ctx, symbol)
}

// finishedDayTTL bounds how long a closed day's tape stays cached.
const finishedDayTTL = 24 * time.Hour

// Trades caches only finished days; today's tape is always fetched.
func (c *CachedMarketData) Trades(ctx context.Context, symbol string, day time.Time) ([]models.Trade, error) {
	if !util.StartOfDay(day).Before(util.StartOfDay(c.now())) {
		return c.next.Trades(ctx, symbol, day)
	}
	key := fmt.Sprintf("trades:%s:%s", symbol, day.Format(util.DateLayout))
	var out []models.Trade
	err := c.through(ctx, key, finishedDayTTL, &out, func() (any, error) {
		return c.next.Trades(ctx, symbol, day)
	})
	return out, err
}

func (c *CachedMarketData) FXRate(ctx context.Context, base, quote string) (float64, error) {
	var out float64
	err := c.through(ctx, "fx:"+base+":"+quote, c.ttl, &out, func() (any, error) {
		return c.next.FXRate(ctx, base, quote)
	})
	return out, err
}

// through decodes key into dest, or calls load, stores and decodes its value.
func (c *CachedMarketData) through(ctx context.Context, key string, ttl time.Duration, dest any, load func() (any, error)) error {
	b, ok, err := c.cache.GetBytes(ctx, key)
	switch {
	case err != nil:
		upstream.CacheRequests.WithLabelValues("error").Inc()
		c.l.Warn("market data cache read", applogger.String("key", key), applogger.Error(err))
	case ok:
		if derr := c.codec.Unmarshal(b, dest); derr == nil {
			upstream.CacheRequests.WithLabelValues("hit").Inc()
			return nil
		}
		upstream.CacheRequests.WithLabelValues("error").Inc()
		c.l.Warn("market data cache entry corrupt", applogger.String("key", key))
	default:
		upstream.CacheRequests.WithLabelValues("miss").Inc()
	}

	v, err := load()
	if err != nil {
		return err
	}
	enc, err := c.codec.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.cache.SetBytes(ctx, key, enc, ttl); err != nil {
		c.l.Warn("market data cache write", applogger.String("key", key), applogger.Error(err))
	}
	return c.codec.Unmarshal(enc, dest)
}

var _ domrepo.MarketData = (*CachedMarketData)(nil)
