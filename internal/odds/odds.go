// Package odds computes the consensus of a market's active predictions.
//
// Calculate is a pure function over a set of probabilities in percent (0–100):
//
//	median, mean, population standard deviation
//	decimal odds      = 1 / p          (p = mean / 100)
//	fractional odds   = decimal − 1 as "num/den" with small integers
//	implied prob      = 1 / decimal    (recomputed, never copied from p)
//
// An empty set yields a Summary whose fields are all nil. Values are returned
// at full precision; rounding is a presentation concern.
package odds

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// maxFractionalDenominator bounds the denominator of fractional odds.
const maxFractionalDenominator = 20

// Summary is the point-in-time consensus of a prediction set.
type Summary struct {
	PredictionCount int               `json:"predictionCount"`
	Statistics      models.Statistics `json:"statistics"`
	Odds            models.Odds       `json:"odds"`
}

// HasData reports whether the summary was computed from at least one prediction.
func (s Summary) HasData() bool {
	return s.PredictionCount > 0
}

// Calculate returns the consensus statistics and odds for probabilities.
// The input slice is not modified.
func Calculate(probabilities []float64) Summary {
	n := len(probabilities)
	if n == 0 {
		return Summary{}
	}

	median := Median(probabilities)
	mean := Mean(probabilities)
	sd := StdDeviation(probabilities)

	s := Summary{
		PredictionCount: n,
		Statistics: models.Statistics{
			Median:       &median,
			Mean:         &mean,
			StdDeviation: &sd,
		},
	}
	s.Odds = FromProbability(mean)
	return s
}

// FromProbability derives every odds representation from a percentage.
// Decimal, Fractional and ImpliedProbability are nil when pct is 0.
func FromProbability(pct float64) models.Odds {
	probability := pct
	o := models.Odds{Probability: &probability}

	decimal, err := ProbabilityToDecimal(pct / 100)
	if err != nil {
		return o
	}
	o.Decimal = &decimal

	if frac, err := DecimalToFractional(decimal); err == nil {
		o.Fractional = &frac
	}
	if implied, err := DecimalToImpliedProbability(decimal); err == nil {
		impliedPct := implied * 100
		o.ImpliedProbability = &impliedPct
	}
	return o
}

// Median returns the middle value of values, or the mean of the two middle
// values when the count is even. It panics on an empty slice.
func Median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Mean returns the arithmetic mean of values. It panics on an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		panic("odds: mean of empty set")
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDeviation returns the population standard deviation (divide by n).
// A single value has deviation 0.
func StdDeviation(values []float64) float64 {
	if len(values) == 1 {
		return 0
	}
	mean := Mean(values)
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// ProbabilityToDecimal converts a probability fraction to decimal odds
// 0.50 → 2.00, 0.40 → 2.50
func ProbabilityToDecimal(probability float64) (float64, error) {
	if math.IsNaN(probability) || probability <= 0 || probability > 1 {
		return 0, fmt.Errorf("invalid probability %v: must be in (0,1]", probability)
	}
	return 1.0 / probability, nil
}

// DecimalToImpliedProbability converts decimal odds back to a probability fraction
// 2.00 → 0.50
func DecimalToImpliedProbability(decimal float64) (float64, error) {
	if math.IsNaN(decimal) || math.IsInf(decimal, 0) || decimal <= 0 {
		return 0, fmt.Errorf("invalid decimal odds %v: must be > 0", decimal)
	}
	return 1.0 / decimal, nil
}

// DecimalToFractional renders decimal odds as fractional odds: the profit per
// unit stake (decimal − 1) as the closest ratio of small integers.
// 2.50 → "3/2", 2.00 → "1/1", 1.25 → "1/4"
func DecimalToFractional(decimal float64) (string, error) {
	if math.IsNaN(decimal) || math.IsInf(decimal, 0) || decimal < 1 {
		return "", fmt.Errorf("invalid decimal odds %v: must be >= 1", decimal)
	}
	num, den, err := approximate(decimal-1, maxFractionalDenominator)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d", num, den), nil
}

// approximate returns the best rational approximation num/den of x >= 0 with
// den <= maxDen, using continued-fraction convergents and the last semiconvergent.
func approximate(x float64, maxDen int64) (int64, int64, error) {
	if x < 0 || maxDen < 1 {
		return 0, 0, errors.New("approximate: x must be >= 0 and maxDen >= 1")
	}
	if x >= 1e12 {
		return int64(math.Round(x)), 1, nil
	}

	var p0, q0, p1, q1 int64 = 0, 1, 1, 0
	v := x
	for {
		a := int64(math.Floor(v))
		q2 := q0 + a*q1
		if q2 > maxDen {
			break
		}
		p0, q0, p1, q1 = p1, q1, p0+a*p1, q2

		frac := v - float64(a)
		if frac < 1e-9 {
			return p1, q1, nil
		}
		v = 1 / frac
	}

	k := (maxDen - q0) / q1
	sp, sq := p0+k*p1, q0+k*q1
	if math.Abs(float64(sp)/float64(sq)-x) < math.Abs(float64(p1)/float64(q1)-x) {
		return sp, sq, nil
	}
	return p1, q1, nil
}
