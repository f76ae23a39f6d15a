// Package analytics answers read-only queries over the engine's published
// state: current odds, bucketed history with recent changes, and the
// leaderboard. Nothing here takes a market lock; every answer is assembled
// from immutable views and copies, so repeated calls without intervening
// writes return identical results.
package analytics

import (
	"fmt"
	"time"

	"github.com/rewired-gh/forecastodds/internal/changelog"
	"github.com/rewired-gh/forecastodds/internal/engine"
	"github.com/rewired-gh/forecastodds/internal/models"
	"github.com/rewired-gh/forecastodds/internal/snapshot"
)

// MarketReader resolves a market's published view.
type MarketReader interface {
	Market(marketID string) (*engine.View, bool)
}

// BoardReader returns the published leaderboard.
type BoardReader interface {
	Leaderboard() models.Leaderboard
}

// CurrentOdds is the live consensus of a market.
type CurrentOdds struct {
	MarketID        string                  `json:"marketId"`
	Question        string                  `json:"question"`
	PredictionCount int                     `json:"predictionCount"`
	Statistics      models.Statistics       `json:"statistics"`
	Odds            models.Odds             `json:"odds"`
	Confidence      models.ConfidenceCounts `json:"confidence"`
	Distribution    models.Distribution     `json:"distribution"`
}

// MarketInfo is the market header of an analytics answer.
type MarketInfo struct {
	Question  string              `json:"question"`
	Category  string              `json:"category"`
	Status    models.MarketStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	CloseDate *time.Time          `json:"close_date"`
}

// Analytics is a market's history at one period granularity.
type Analytics struct {
	Market        MarketInfo            `json:"market"`
	Period        models.Period         `json:"period"`
	Snapshots     []models.OddsSnapshot `json:"snapshots"`
	RecentChanges []models.ChangeEvent  `json:"recentChanges"`
}

// Service composes the read side.
type Service struct {
	markets   MarketReader
	snapshots *snapshot.Store
	changes   *changelog.Log
	board     BoardReader
	now       func() time.Time
}

// New creates a Service over the given readers.
func New(markets MarketReader, snapshots *snapshot.Store, changes *changelog.Log, board BoardReader) *Service {
	return &Service{
		markets:   markets,
		snapshots: snapshots,
		changes:   changes,
		board:     board,
		now:       time.Now,
	}
}

// FromEngine creates a Service reading everything e publishes.
func FromEngine(e *engine.Engine) *Service {
	return New(e, e.Snapshots(), e.Changes(), e.Scores())
}

func (s *Service) view(marketID string) (*engine.View, error) {
	v, ok := s.markets.Market(marketID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrMarketNotFound, marketID)
	}
	return v, nil
}

// CurrentOdds returns the consensus over the market's active predictions.
// A market without predictions yields the no-data result with nil statistics.
func (s *Service) CurrentOdds(marketID string) (CurrentOdds, error) {
	v, err := s.view(marketID)
	if err != nil {
		return CurrentOdds{}, err
	}
	return CurrentOdds{
		MarketID:        v.Market.ID,
		Question:        v.Market.Question,
		PredictionCount: v.Summary.PredictionCount,
		Statistics:      v.Summary.Statistics,
		Odds:            v.Summary.Odds,
		Confidence:      v.Buckets.Confidence,
		Distribution:    v.Buckets.Distribution,
	}, nil
}

// History returns up to limit sealed snapshots of period (newest first, the
// in-progress bucket prepended) and the last changes events.
func (s *Service) History(marketID string, period models.Period, limit, changes int) (Analytics, error) {
	v, err := s.view(marketID)
	if err != nil {
		return Analytics{}, err
	}
	snaps, err := s.snapshots.History(marketID, period, limit, s.now())
	if err != nil {
		return Analytics{}, err
	}

	info := MarketInfo{
		Question:  v.Market.Question,
		Category:  v.Market.Category,
		Status:    v.Market.Status,
		CreatedAt: v.Market.CreatedAt,
	}
	if !v.Market.CloseDate.IsZero() {
		closeDate := v.Market.CloseDate
		info.CloseDate = &closeDate
	}

	return Analytics{
		Market:        info,
		Period:        period,
		Snapshots:     snaps,
		RecentChanges: s.changes.Recent(marketID, changes),
	}, nil
}

// RecentChanges returns the last k change events of a market, newest first.
// k <= 0 returns all of them.
func (s *Service) RecentChanges(marketID string, k int) ([]models.ChangeEvent, error) {
	if _, err := s.view(marketID); err != nil {
		return nil, err
	}
	return s.changes.Recent(marketID, k), nil
}

// Leaderboard returns the currently published ranking.
func (s *Service) Leaderboard() models.Leaderboard {
	return s.board.Leaderboard()
}
