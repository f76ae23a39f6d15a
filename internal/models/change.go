package models

import (
	"errors"
	"math"
	"time"
)

// TriggerType names the kind of write that moved the odds.
type TriggerType string

const (
	TriggerNewPrediction     TriggerType = "new_prediction"
	TriggerUpdatedPrediction TriggerType = "updated_prediction"
	TriggerResolution        TriggerType = "resolution"
)

// ChangeEvent is one append-only entry of a market's odds change log.
type ChangeEvent struct {
	ID              string      `json:"id"`
	MarketID        string      `json:"market_id"`
	Sequence        int64       `json:"sequence"`
	Timestamp       time.Time   `json:"timestamp"`
	TriggerType     TriggerType `json:"triggerType"`
	PredictionCount int         `json:"predictionCount"`
	Probability     *float64    `json:"probability"` // percent, nil without predictions
	DecimalOdds     *float64    `json:"decimalOdds"`
	Change          float64     `json:"change"` // signed delta from the preceding event
}

// Direction returns "increase", "decrease" or "unchanged".
func (c *ChangeEvent) Direction() string {
	switch {
	case c.Change > 0:
		return "increase"
	case c.Change < 0:
		return "decrease"
	}
	return "unchanged"
}

// Magnitude returns |Change|.
func (c *ChangeEvent) Magnitude() float64 {
	return math.Abs(c.Change)
}

// Validate checks that all change event fields are valid
func (c *ChangeEvent) Validate() error {
	if c.ID == "" {
		return errors.New("change ID must not be empty")
	}
	if c.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	switch c.TriggerType {
	case TriggerNewPrediction, TriggerUpdatedPrediction, TriggerResolution:
	default:
		return errors.New("trigger type must be one of: new_prediction, updated_prediction, resolution")
	}
	if c.PredictionCount < 0 {
		return errors.New("prediction count must not be negative")
	}
	if c.Probability != nil {
		if err := ValidateProbability(*c.Probability); err != nil {
			return errors.New("probability must be between 0 and 100")
		}
	}
	if c.Change < -100 || c.Change > 100 {
		return errors.New("change must be between -100 and 100")
	}
	if c.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}
