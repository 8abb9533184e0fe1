package models

import "time"

// PricePoint is a single daily close.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Close float64   `json:"close"`
}

// PriceSeries is a chronologically ordered close history for one symbol.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of closes.
func (s PriceSeries) Len() int { return len(s.Points) }

// LastClose returns the most recent close, or 0 for an empty series.
func (s PriceSeries) LastClose() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].Close
}

// Closes returns the close prices in order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// LastTime returns the timestamp of the most recent close.
func (s PriceSeries) LastTime() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Time
}

// Trade is one intraday execution.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}

// InstrumentRow is the persisted per-instrument snapshot.
type InstrumentRow struct {
	Symbol     string    `json:"symbol"`
	LastClose  float64   `json:"last_close"`
	Volatility float64   `json:"volatility"`
	AsOf       time.Time `json:"as_of"`
}

// WarrantQuote is the gateway's current quote and terms for one warrant.
// Zero Strike, ConversionRatio or Expiry mean the term is unknown.
type WarrantQuote struct {
	Symbol          string    `json:"symbol"`
	Underlying      string    `json:"underlying,omitempty"`
	Price           float64   `json:"price"`
	Strike          float64   `json:"strike,omitempty"`
	ConversionRatio float64   `json:"conversion_ratio,omitempty"`
	Expiry          time.Time `json:"expiry,omitempty"`
}

// TradeStats summarizes intraday trades for reporting.
type TradeStats struct {
	VolumeSum      float64 `json:"volume_sum"`
	TradeCount     int     `json:"trade_count"`
	LastTradePrice float64 `json:"last_trade_price"`
}

// SummarizeTrades builds TradeStats from trades ordered by time.
func SummarizeTrades(trades []Trade) *TradeStats {
	if len(trades) == 0 {
		return nil
	}
	st := &TradeStats{TradeCount: len(trades)}
	for _, t := range trades {
		st.VolumeSum += t.Volume
	}
	st.LastTradePrice = trades[len(trades)-1].Price
	return st
}

// TradeMessage is the wire form of a trade on the trades topic. T is unix
// milliseconds; values below 1e11 are read as seconds.
type TradeMessage struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	P      float64 `json:"p"`
	V      float64 `json:"v"`
}

// NewTradeMessage encodes t for the wire.
func NewTradeMessage(t Trade) TradeMessage {
	return TradeMessage{Symbol: t.Symbol, T: t.Timestamp.UnixMilli(), P: t.Price, V: t.Volume}
}

// Trade decodes the message.
func (m TradeMessage) Trade() Trade {
	ts := time.UnixMilli(m.T)
	if m.T < 1e11 {
		ts = time.Unix(m.T, 0)
	}
	return Trade{Symbol: m.Symbol, Timestamp: ts.UTC(), Price: m.P, Volume: m.V}
}
