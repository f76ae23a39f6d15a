package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Confidence is the forecaster's self-reported confidence in a prediction.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence returns the Confidence named by s, or an ErrValidation error.
func ParseConfidence(s string) (Confidence, error) {
	switch c := Confidence(s); c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown confidence %q", ErrValidation, s)
}

// ValidateProbability checks that p lies in [0,100].
func ValidateProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("%w: probability %v outside [0,100]", ErrValidation, p)
	}
	return nil
}

// PredictionUpdate records one edit of an active prediction.
type PredictionUpdate struct {
	PriorValue float64   `json:"prior_value"`
	NewValue   float64   `json:"new_value"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Sources    []string  `json:"sources,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Prediction is the active forecast of one forecaster (or anonymous token) on one market.
// Superseded values survive only in History.
type Prediction struct {
	ID           string             `json:"id"`
	MarketID     string             `json:"market_id"`
	ForecasterID string             `json:"forecaster_id"` // user ID, or the anonymized token when IsAnonymous
	IsAnonymous  bool               `json:"is_anonymous"`
	Probability  float64            `json:"probability"`
	Confidence   Confidence         `json:"confidence"`
	Reasoning    string             `json:"reasoning,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    *time.Time         `json:"updated_at,omitempty"`
	History      []PredictionUpdate `json:"update_history,omitempty"`
}

// Key identifies the (forecaster, market) slot a prediction occupies. The
// anonymity flag is not part of it: one identity holds one slot per market.
func (p *Prediction) Key() string {
	return p.ForecasterID
}

// Validate checks that all prediction fields are valid.
func (p *Prediction) Validate() error {
	if p.ID == "" {
		return errors.New("prediction ID must not be empty")
	}
	if p.MarketID == "" {
		return errors.New("market ID must not be empty")
	}
	if p.ForecasterID == "" {
		return errors.New("forecaster ID or anonymous token must not be empty")
	}
	if err := ValidateProbability(p.Probability); err != nil {
		return err
	}
	if _, err := ParseConfidence(string(p.Confidence)); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	if n := len(p.History); n > 0 {
		last := p.History[n-1]
		if last.NewValue != p.Probability {
			return errors.New("active probability must equal the latest update's new value")
		}
		if p.UpdatedAt == nil || !p.UpdatedAt.Equal(last.UpdatedAt) {
			return errors.New("updated at must equal the latest update's timestamp")
		}
	}
	return nil
}

// Apply replaces the active value and appends the edit to the history.
func (p *Prediction) Apply(probability float64, confidence Confidence, reasoning string, sources []string, at time.Time) {
	p.History = append(p.History, PredictionUpdate{
		PriorValue: p.Probability,
		NewValue:   probability,
		Reasoning:  reasoning,
		Sources:    sources,
		UpdatedAt:  at,
	})
	p.Probability = probability
	p.Confidence = confidence
	if reasoning != "" {
		p.Reasoning = reasoning
	}
	p.UpdatedAt = &at
}

// Clone returns a deep copy of p.
func (p Prediction) Clone() Prediction {
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		p.UpdatedAt = &t
	}
	if p.History != nil {
		h := make([]PredictionUpdate, len(p.History))
		copy(h, p.History)
		p.History = h
	}
	return p
}
