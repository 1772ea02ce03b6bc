package backtest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultWeightTolerance is how far a weight sum may drift from 1 before it
// is treated as unnormalized
const DefaultWeightTolerance = 1e-3

// WeightPolicy decides what happens to weights that do not sum to 1. By
// default they are rejected; with AllowUnnormalized they are accepted with a
// warning and the shortfall or excess behaves as implied cash or leverage.
type WeightPolicy struct {
	Tolerance         float64 `json:"tolerance"`
	AllowUnnormalized bool    `json:"allow_unnormalized"`
}

// DefaultWeightPolicy rejects weight vectors whose sum is off by more than
// DefaultWeightTolerance
var DefaultWeightPolicy = WeightPolicy{Tolerance: DefaultWeightTolerance}

// Validate checks weights against the asset count and the policy
func (p WeightPolicy) Validate(weights []float64, assetCount int) error {
	if len(weights) != assetCount {
		return fmt.Errorf("%d weights for %d assets: %w", len(weights), assetCount, ErrLengthMismatch)
	}

	sum := 0.0
	for i, w := range weights {
		if !(w >= 0) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is %v: %w", i, w, ErrNegativeWeight)
		}
		sum += w
	}

	tolerance := p.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultWeightTolerance
	}
	if math.Abs(sum-1) <= tolerance {
		return nil
	}
	// Nothing invested means every balance is zero and no return exists.
	if sum <= 0 {
		return fmt.Errorf("weights sum to zero: %w", ErrUnnormalizedWeights)
	}

	if p.AllowUnnormalized {
		log.Warn().
			Float64("sum", sum).
			Floats64("weights", weights).
			Msg("Weights do not sum to 1, simulating with implied cash or leverage")
		return nil
	}
	return fmt.Errorf("sum is %.6f: %w", sum, ErrUnnormalizedWeights)
}

// Normalize scales weights so they sum to 1
func Normalize(weights []float64) ([]float64, error) {
	sum := 0.0
	for i, w := range weights {
		if !(w >= 0) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight %d is %v: %w", i, w, ErrNegativeWeight)
		}
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("weights sum to zero: %w", ErrUnnormalizedWeights)
	}

	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / sum
	}
	return normalized, nil
}

// ParseTickers splits a comma separated ticker list, trimming blanks and
// upper-casing symbols
func ParseTickers(s string) ([]string, error) {
	var tickers []string
	for _, part := range strings.Split(s, ",") {
		t := strings.ToUpper(strings.TrimSpace(part))
		if t == "" {
			continue
		}
		tickers = append(tickers, t)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers in %q", s)
	}
	return tickers, nil
}

// ParseWeights splits a comma separated list of decimal weights
func ParseWeights(s string) ([]float64, error) {
	var weights []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", part, err)
		}
		weights = append(weights, w)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("no weights in %q", s)
	}
	return weights, nil
}

// EqualWeights returns n weights of 1/n
func EqualWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}
	return weights
}
