package models

import (
	"fmt"
	"math"
	"time"
)

// OptionType selects the payoff of the closed-form pricer.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Action is the directional recommendation for a warrant.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
)

// VolatilityEstimate is an annualized volatility produced by a VolatilityEstimator.
type VolatilityEstimate struct {
	Value float64   `json:"value"`
	AsOf  time.Time `json:"as_of"`
	P     int       `json:"p"`
	Q     int       `json:"q"`
	Model string    `json:"model"`
}

// PricingInputs holds everything the pricer needs for one warrant.
type PricingInputs struct {
	Spot            float64 `json:"spot"`
	Strike          float64 `json:"strike"`
	Volatility      float64 `json:"volatility"`
	Rate            float64 `json:"rate"`
	Expiry          float64 `json:"expiry"` // years
	ConversionRatio float64 `json:"conversion_ratio"`
}

// Validate rejects inputs that cannot be priced.
func (in PricingInputs) Validate() error {
	switch {
	case !(in.Spot > 0) || math.IsInf(in.Spot, 0):
		return fmt.Errorf("%w: spot must be > 0, got %v", ErrInvalidParameter, in.Spot)
	case !(in.Strike > 0) || math.IsInf(in.Strike, 0):
		return fmt.Errorf("%w: strike must be > 0, got %v", ErrInvalidParameter, in.Strike)
	case !(in.Volatility >= 0) || math.IsInf(in.Volatility, 0):
		return fmt.Errorf("%w: volatility must be >= 0, got %v", ErrInvalidParameter, in.Volatility)
	case !(in.Expiry > 0) || math.IsInf(in.Expiry, 0):
		return fmt.Errorf("%w: time to expiry must be > 0, got %v", ErrInvalidParameter, in.Expiry)
	case math.IsNaN(in.Rate) || math.IsInf(in.Rate, 0):
		return fmt.Errorf("%w: rate must be finite, got %v", ErrInvalidParameter, in.Rate)
	case !(in.ConversionRatio > 0):
		return fmt.Errorf("%w: conversion ratio must be > 0, got %v", ErrInvalidParameter, in.ConversionRatio)
	}
	return nil
}

// PricingResult is the immutable outcome of evaluating one instrument in one cycle.
type PricingResult struct {
	Symbol          string        `json:"symbol"`
	Inputs          PricingInputs `json:"inputs"`
	MarketPrice     float64       `json:"market_price"`
	MonteCarloPrice float64       `json:"monte_carlo_price"`
	MonteCarloError float64       `json:"monte_carlo_std_error"`
	ClosedFormPrice float64       `json:"closed_form_price"`
	Delta           float64       `json:"delta"`
	Edge            float64       `json:"edge"`
	SizingFraction  float64       `json:"sizing_fraction"`
	Action          Action        `json:"action"`
	ExpectedProfit  float64       `json:"expected_profit"`
	EvaluatedAt     time.Time     `json:"evaluated_at"`
}

// MCResult is a Monte-Carlo estimate with its sampling metadata.
type MCResult struct {
	Price    float64 `json:"price"`
	StdError float64 `json:"std_error"`
	Paths    int     `json:"paths"`
	Steps    int     `json:"steps"`
	Seed     uint64  `json:"seed"`
}
