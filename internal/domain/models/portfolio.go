package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScoredInstrument pairs a symbol with its pricing result; input to the allocator.
type ScoredInstrument struct {
	Symbol string
	Result PricingResult
	Trades *TradeStats
}

// PortfolioEntry is one allocated position.
type PortfolioEntry struct {
	Symbol  string        `json:"symbol"`
	Result  PricingResult `json:"result"`
	Capital float64       `json:"capital"`
	Trades  *TradeStats   `json:"trades,omitempty"`
}

// Portfolio is the capital-allocated opportunity set of one cycle.
type Portfolio struct {
	Entries         []PortfolioEntry `json:"entries"`
	TotalInvestment float64          `json:"total_investment"`
	Currency        string           `json:"currency,omitempty"`
}

// AllocatedTotal sums the capital of all entries.
func (p *Portfolio) AllocatedTotal() float64 {
	sum := 0.0
	for _, e := range p.Entries {
		sum += e.Capital
	}
	return sum
}

// Valuation is a portfolio amount converted into a quote currency.
type Valuation struct {
	Base   string          `json:"base"`
	Quote  string          `json:"quote"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// ItemStatus marks the outcome of a per-instrument evaluation.
type ItemStatus string

const (
	ItemOK     ItemStatus = "ok"
	ItemFailed ItemStatus = "failed"
)

// ItemResult is the per-instrument slot of a batch; written once by its worker.
type ItemResult struct {
	Symbol     string              `json:"symbol"`
	Status     ItemStatus          `json:"status"`
	Kind       string              `json:"kind,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Volatility *VolatilityEstimate `json:"volatility,omitempty"`
	Result     *PricingResult      `json:"result,omitempty"`
	Trades     *TradeStats         `json:"trades,omitempty"`
	Duration   time.Duration       `json:"duration_ns"`
	Err        error               `json:"-"`
}

// BatchReport records per-item outcomes of one batch run.
type BatchReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Items      []ItemResult   `json:"items"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Failures   map[string]int `json:"failures,omitempty"`
}

// Tally fills the success/failure counters from Items.
func (r *BatchReport) Tally() {
	r.Succeeded, r.Failed = 0, 0
	r.Failures = map[string]int{}
	for _, it := range r.Items {
		if it.Status == ItemOK {
			r.Succeeded++
			continue
		}
		r.Failed++
		r.Failures[it.Kind]++
	}
	if len(r.Failures) == 0 {
		r.Failures = nil
	}
}

// Scored returns the successful items as allocator input.
func (r *BatchReport) Scored() []ScoredInstrument {
	out := make([]ScoredInstrument, 0, r.Succeeded)
	for _, it := range r.Items {
		if it.Status != ItemOK || it.Result == nil {
			continue
		}
		out = append(out, ScoredInstrument{Symbol: it.Symbol, Result: *it.Result, Trades: it.Trades})
	}
	return out
}

// BatchOutcome bundles what a batch run publishes.
type BatchOutcome struct {
	Report    *BatchReport `json:"report"`
	Portfolio *Portfolio   `json:"portfolio,omitempty"`
	Valuation *Valuation   `json:"valuation,omitempty"`
	Error     string       `json:"error,omitempty"`
}
