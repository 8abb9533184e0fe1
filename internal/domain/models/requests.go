package models

// Requests for the pricing HTTP endpoints. Numeric fields with a default are
// pointers so an explicit zero is kept (or rejected) rather than replaced.

type EvaluateRequest struct {
	Symbol          string   `json:"symbol" validate:"required"`
	Spot            float64  `json:"spot" validate:"gt=0"`
	Strike          float64  `json:"strike" validate:"gt=0"`
	Volatility      *float64 `json:"volatility" validate:"required,gte=0"`
	Rate            *float64 `json:"rate" default:"0.05" validate:"required"`
	ExpiryDays      *int     `json:"expiry_days" default:"30" validate:"required,gte=1,lte=3650"`
	ConversionRatio *float64 `json:"conversion_ratio" default:"1" validate:"required,gt=0"`
	MarketPrice     float64  `json:"market_price" validate:"gt=0"`
}

type BatchRequest struct {
	Symbols         []string `json:"symbols" validate:"omitempty,dive,required"`
	TotalInvestment string   `json:"total_investment" validate:"required"`
	FromSnapshots   bool     `json:"from_snapshots"`
}

// QuoteRequest prices a warrant from operator-supplied terms.
type QuoteRequest struct {
	Spot            float64  `json:"spot" query:"spot" validate:"gt=0"`
	Strike          float64  `json:"strike" query:"strike" validate:"gt=0"`
	ExpiryDate      string   `json:"expiry_date" query:"expiry_date"`
	RatePercent     *float64 `json:"rate_percent" query:"rate_percent" default:"4.5" validate:"required"`
	Sigma           *float64 `json:"sigma" query:"sigma" default:"0.3" validate:"required,gte=0"`
	ConversionRatio *float64 `json:"conversion_ratio" query:"conversion_ratio" default:"1" validate:"required,gt=0"`
	OptionType      string   `json:"option_type" query:"option_type" default:"call" validate:"oneof=call put"`
}

type SeriesRequest struct {
	Symbol   string `param:"symbol" validate:"required"`
	Tail     *int   `query:"tail" default:"10" validate:"required,gte=1,lte=1000"`
	Interval string `query:"interval"`
}

// DownloadRequest selects the instruments (and trading day for trades) to download.
type DownloadRequest struct {
	Symbols []string `json:"symbols" validate:"omitempty,dive,required"`
	Date    string   `json:"date"` // YYYY-MM-DD, empty for today
}
