// Package changelog records every odds-affecting event of a market together
// with the signed probability delta it caused.
//
// The log is append-only and ordered by timestamp, ties broken by insertion
// order (a per-market sequence number). It is never rewritten or compacted; retention is an external concern.
package changelog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/forecastodds/internal/models"
	"github.com/rewired-gh/forecastodds/internal/odds"
)

// Log provides thread-safe, per-market change logs.
type Log struct {
	mu     sync.RWMutex
	events map[string][]models.ChangeEvent
}

// New creates an empty Log.
func New() *Log {
	return &Log{events: make(map[string][]models.ChangeEvent)}
}

// Append records an event for marketID computed from summary and returns it.
func (l *Log) Append(marketID string, at time.Time, trigger models.TriggerType, summary odds.Summary) (models.ChangeEvent, error) {
	event, err := l.Prepare(marketID, at, trigger, summary)
	if err != nil {
		return models.ChangeEvent{}, err
	}
	if err := l.Commit(event); err != nil {
		return models.ChangeEvent{}, err
	}
	return event, nil
}

// Prepare builds the next event for marketID without recording it. The delta
// is measured against the immediately preceding event's probability and is 0
// for the first event or when either side has no predictions.
//
// Prepare and Commit must be serialized per market by the caller.
func (l *Log) Prepare(marketID string, at time.Time, trigger models.TriggerType, summary odds.Summary) (models.ChangeEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	existing := l.events[marketID]
	var prev *models.ChangeEvent
	if n := len(existing); n > 0 {
		prev = &existing[n-1]
		if at.Before(prev.Timestamp) {
			return models.ChangeEvent{}, fmt.Errorf("%w: %s before %s", models.ErrOutOfOrder,
				at.Format(time.RFC3339Nano), prev.Timestamp.Format(time.RFC3339Nano))
		}
	}

	event := models.ChangeEvent{
		ID:              uuid.New().String(),
		MarketID:        marketID,
		Sequence:        1,
		Timestamp:       at.UTC(),
		TriggerType:     trigger,
		PredictionCount: summary.PredictionCount,
		Probability:     summary.Odds.Probability,
		DecimalOdds:     summary.Odds.Decimal,
	}
	if prev != nil {
		event.Sequence = prev.Sequence + 1
		if prev.Probability != nil && event.Probability != nil {
			event.Change = *event.Probability - *prev.Probability
		}
	}
	if err := event.Validate(); err != nil {
		return models.ChangeEvent{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return event, nil
}

// Commit appends an event built by Prepare.
func (l *Log) Commit(event models.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.events[event.MarketID]
	if n := len(existing); n > 0 && existing[n-1].Sequence >= event.Sequence {
		return fmt.Errorf("%w: sequence %d already recorded for market %s", models.ErrOutOfOrder, event.Sequence, event.MarketID)
	}
	l.events[event.MarketID] = append(existing, event)
	return nil
}

// Recent returns the last k events of marketID, newest first. k <= 0 returns all.
func (l *Log) Recent(marketID string, k int) []models.ChangeEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events[marketID]
	n := len(events)
	if k > 0 && k < n {
		n = k
	}
	result := make([]models.ChangeEvent, 0, n)
	for i := len(events) - 1; i >= len(events)-n; i-- {
		result = append(result, events[i])
	}
	return result
}

// Last returns the most recent event of marketID.
func (l *Log) Last(marketID string) (models.ChangeEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.events[marketID]
	if len(events) == 0 {
		return models.ChangeEvent{}, false
	}
	return events[len(events)-1], true
}

// Load restores previously persisted events. Events must be given in log
// order (timestamp, then sequence) per market.
func (l *Log) Load(events []models.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range events {
		l.events[e.MarketID] = append(l.events[e.MarketID], e)
	}
}
