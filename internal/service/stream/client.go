package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	drepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// Client is a TradeStream over the gateway's websocket trade feed.
type Client struct {
	apiKey       string
	url          string
	pingInterval time.Duration
	log          *logger.Logger

	mu        sync.Mutex // guards conn and writes
	conn      *websocket.Conn
	connected atomic.Bool
	dropped   atomic.Int64
}

func New(streamURL, apiKey string, pingInterval time.Duration, log *logger.Logger) *Client {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{apiKey: apiKey, url: streamURL, pingInterval: pingInterval, log: log}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: stream connect: %w", models.ErrExternalFetch, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("trade stream connected", logger.String("host", u.Host))
	return nil
}

type control struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func (c *Client) Subscribe(_ context.Context, symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("trade stream not connected")
	}
	for _, s := range symbols {
		if err := c.conn.WriteJSON(control{Type: "subscribe", Symbol: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("trade stream subscribed", logger.Int("symbols", len(symbols)))
	return nil
}

type wireTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wireMessage struct {
	Type string      `json:"type"`
	Data []wireTrade `json:"data"`
}

// Read streams trades until the connection fails or ctx ends. Trades are
// dropped when the consumer falls behind. The error channel carries at
// most one error.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("trade stream not connected")
		close(trades)
		close(errs)
		return trades, errs
	}

	readCtx, cancel := context.WithCancel(ctx)
	go c.pingLoop(readCtx, conn)
	go func() {
		// unblock ReadMessage when ctx ends
		<-readCtx.Done()
		if ctx.Err() != nil {
			_ = conn.Close()
		}
	}()

	go func() {
		defer cancel()
		defer close(trades)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.connected.Store(false)
				if ctx.Err() == nil {
					errs <- fmt.Errorf("stream read: %w", err)
				}
				return
			}
			var m wireMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				t := &models.Trade{Symbol: d.S, Timestamp: time.UnixMilli(d.T).UTC(), Price: d.P, Volume: d.V}
				select {
				case trades <- t:
				default:
					c.dropped.Add(1)
				}
			}
		}
	}()
	return trades, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Reconnect drops the current connection and dials again. Callers resubscribe.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	return c.Connect(ctx)
}

func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if n := c.dropped.Swap(0); n > 0 {
		c.log.Warn("trades dropped on backpressure", logger.Int64("count", n))
	}
	return err
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

var _ drepo.TradeStream = (*Client)(nil)
