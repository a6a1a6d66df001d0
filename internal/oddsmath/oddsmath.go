// Package oddsmath converts between American odds, decimal odds, and implied
// probabilities, and strips vig from two-way markets.
package oddsmath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmericanToDecimal converts American odds to decimal odds (+150 -> 2.50,
// -150 -> 1.6667).
func AmericanToDecimal(american int) (float64, error) {
	if american == 0 {
		return 0, fmt.Errorf("american odds cannot be 0")
	}
	if american > 0 {
		return float64(american)/100.0 + 1.0, nil
	}
	return 100.0/float64(-american) + 1.0, nil
}

// ImpliedProbability converts American odds to the book's implied win
// probability, vig included (-110 -> 0.5238).
func ImpliedProbability(american int) (float64, error) {
	dec, err := AmericanToDecimal(american)
	if err != nil {
		return 0, err
	}
	return 1.0 / dec, nil
}

// NoVig normalizes a two-way market's implied probabilities so they sum to 1
// (multiplicative method). Both inputs must be positive.
func NoVig(probHome, probAway float64) (fairHome, fairAway float64, err error) {
	if probHome <= 0 || probAway <= 0 {
		return 0, 0, fmt.Errorf("probabilities must be positive: home=%v away=%v", probHome, probAway)
	}
	total := probHome + probAway
	return probHome / total, probAway / total, nil
}

// NoVigHomeProbability is the home side's fair probability from the two
// American prices of one snapshot.
func NoVigHomeProbability(priceHome, priceAway int) (float64, error) {
	ph, err := ImpliedProbability(priceHome)
	if err != nil {
		return 0, err
	}
	pa, err := ImpliedProbability(priceAway)
	if err != nil {
		return 0, err
	}
	fairHome, _, err := NoVig(ph, pa)
	return fairHome, err
}

// VigPercentage is the overround of a two-way market in percent
// (-110/-110 -> 4.76).
func VigPercentage(probHome, probAway float64) float64 {
	return (probHome + probAway - 1.0) * 100.0
}

// FlatStakeProfit is the net profit of a winning flat-stake bet at American
// odds, stake not included. Decimal math keeps ROI sums exact enough for
// promotion gating.
func FlatStakeProfit(stake decimal.Decimal, american int) (decimal.Decimal, error) {
	if american == 0 {
		return decimal.Zero, fmt.Errorf("american odds cannot be 0")
	}
	if american > 0 {
		return stake.Mul(decimal.NewFromInt(int64(american))).Div(decimal.NewFromInt(100)), nil
	}
	return stake.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(-american))), nil
}
