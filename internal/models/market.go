// Package models defines the core domain entities for the forecastodds engine.
// These models represent forecasters, markets, their predictions, the odds
// snapshots and change events derived from them, and leaderboard entries.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Probabilities are expressed in percent (0–100) everywhere, matching the
// values forecasters submit.
package models

import (
	"errors"
	"time"
)

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	StatusProposed MarketStatus = "proposed"
	StatusOpen     MarketStatus = "open"
	StatusResolved MarketStatus = "resolved"
	StatusRejected MarketStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s MarketStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusOpen, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether a market may move from s to next.
// Transitions are monotonic: proposed→open→resolved, or proposed→rejected.
func (s MarketStatus) CanTransition(next MarketStatus) bool {
	switch s {
	case StatusProposed:
		return next == StatusOpen || next == StatusRejected
	case StatusOpen:
		return next == StatusResolved
	}
	return false
}

// Resolution holds the write-once outcome of a resolved market.
type Resolution struct {
	Outcome    float64   `json:"outcome"` // 0–100
	Source     string    `json:"resolution_source,omitempty"`
	Notes      string    `json:"resolution_notes,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Market is a forecasting question that experts submit probabilities on.
type Market struct {
	ID         string       `json:"id"`
	Question   string       `json:"question"`
	Category   string       `json:"category"`
	Status     MarketStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	CloseDate  time.Time    `json:"close_date"`
	Resolution *Resolution  `json:"resolution,omitempty"` // present iff Status == resolved
}

// Validate checks that all market fields are valid.
func (m *Market) Validate() error {
	if m.ID == "" {
		return errors.New("market ID must not be empty")
	}
	if m.Question == "" {
		return errors.New("market question must not be empty")
	}
	if m.Category == "" {
		return errors.New("market category must not be empty")
	}
	if !m.Status.Valid() {
		return errors.New("market status must be one of: proposed, open, resolved, rejected")
	}
	if m.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	if !m.CloseDate.IsZero() && m.CloseDate.Before(m.CreatedAt) {
		return errors.New("close date must be >= created at")
	}
	if (m.Status == StatusResolved) != (m.Resolution != nil) {
		return errors.New("resolution must be present iff status is resolved")
	}
	if m.Resolution != nil {
		if err := ValidateProbability(m.Resolution.Outcome); err != nil {
			return errors.New("resolution outcome must be between 0 and 100")
		}
		if m.Resolution.ResolvedAt.IsZero() {
			return errors.New("resolved at must be set")
		}
	}
	return nil
}

// IsResolved reports whether the market has a fixed outcome.
func (m *Market) IsResolved() bool {
	return m.Status == StatusResolved && m.Resolution != nil
}
