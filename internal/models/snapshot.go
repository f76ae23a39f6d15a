package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Period is the granularity of a snapshot bucket.
type Period string

const (
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodAnnual    Period = "annual"
)

// Periods lists every granularity a snapshot is captured at.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodAnnual}

// ParsePeriod returns the Period named by s. "3-monthly" and "yearly" are accepted aliases.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return PeriodDaily, nil
	case "weekly":
		return PeriodWeekly, nil
	case "monthly":
		return PeriodMonthly, nil
	case "quarterly", "3-monthly":
		return PeriodQuarterly, nil
	case "annual", "yearly":
		return PeriodAnnual, nil
	}
	return "", fmt.Errorf("%w: unknown period %q", ErrValidation, s)
}

// Statistics summarizes the active probabilities of a market.
// All fields are nil when there are no predictions.
type Statistics struct {
	Median       *float64 `json:"median"`
	Mean         *float64 `json:"mean"`
	StdDeviation *float64 `json:"stdDeviation"`
}

// Odds expresses the consensus probability in the usual betting forms.
type Odds struct {
	Probability        *float64 `json:"probability"` // percent
	Decimal            *float64 `json:"decimal"`
	Fractional         *string  `json:"fractional"`
	ImpliedProbability *float64 `json:"impliedProbability"` // percent, recomputed from Decimal
}

// ConfidenceCounts tallies predictions per confidence level.
type ConfidenceCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Total returns the number of predictions counted.
func (c ConfidenceCounts) Total() int {
	return c.High + c.Medium + c.Low
}

// Distribution is the 4-bin probability histogram.
type Distribution struct {
	Range0To25   int `json:"range_0_25"`
	Range25To50  int `json:"range_25_50"`
	Range50To75  int `json:"range_50_75"`
	Range75To100 int `json:"range_75_100"`
}

// Total returns the number of predictions binned.
func (d Distribution) Total() int {
	return d.Range0To25 + d.Range25To50 + d.Range50To75 + d.Range75To100
}

// SnapshotOdds is the subset of Odds kept in history.
type SnapshotOdds struct {
	Probability *float64 `json:"probability"`
	Decimal     *float64 `json:"decimal"`
	Fractional  *string  `json:"fractional"`
}

// OddsSnapshot is the aggregate of a market's odds for one calendar bucket.
// There is exactly one per (market, period, bucket).
type OddsSnapshot struct {
	ID              string           `json:"id"`
	MarketID        string           `json:"market_id"`
	Period          Period           `json:"period"`
	BucketStart     time.Time        `json:"date"`
	CapturedAt      time.Time        `json:"captured_at"`
	PredictionCount int              `json:"predictionCount"`
	Median          *float64         `json:"median"`
	Mean            *float64         `json:"mean"`
	StdDeviation    *float64         `json:"stdDeviation"`
	Odds            SnapshotOdds     `json:"odds"`
	Confidence      ConfidenceCounts `json:"confidence"`
	Distribution    Distribution     `json:"distribution"`
	InProgress      bool             `json:"inProgress"`
}

// Validate checks that all snapshot fields are valid.
func (s *OddsSnapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot ID must not be empty")
	}
	if s.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if _, err := ParsePeriod(string(s.Period)); err != nil {
		return errors.New("snapshot period is invalid")
	}
	if s.BucketStart.IsZero() {
		return errors.New("bucket start must be set")
	}
	if s.CapturedAt.Before(s.BucketStart) {
		return errors.New("captured at must be >= bucket start")
	}
	if s.PredictionCount < 0 {
		return errors.New("prediction count must not be negative")
	}
	if s.Confidence.Total() != s.PredictionCount {
		return errors.New("confidence counts must sum to prediction count")
	}
	if s.Distribution.Total() != s.PredictionCount {
		return errors.New("distribution bins must sum to prediction count")
	}
	if s.Mean != nil {
		if err := ValidateProbability(*s.Mean); err != nil {
			return errors.New("mean must be between 0 and 100")
		}
	}
	return nil
}
