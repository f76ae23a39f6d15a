package scoring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// Source supplies the complete data set a rebuild reads.
type Source interface {
	ListMarkets(ctx context.Context) ([]models.Market, error)
	ListPredictions(ctx context.Context) ([]models.Prediction, error)
	ListForecasters(ctx context.Context) ([]models.Forecaster, error)
}

// Engine owns the published leaderboard.
//
// Rebuilds serialize on a mutex and always read the full data set, so a rebuild
// that runs after a newer resolution still reflects every resolved market.
// Publication is a single pointer swap; readers never block and never observe
// a partial board. A failed rebuild keeps the previous board.
type Engine struct {
	source  Source
	rebuild sync.Mutex
	current atomic.Pointer[models.Leaderboard]
	now     func() time.Time
}

// NewEngine creates an Engine publishing an empty leaderboard.
func NewEngine(source Source) *Engine {
	e := &Engine{source: source, now: time.Now}
	e.current.Store(&models.Leaderboard{Entries: []models.LeaderboardEntry{}})
	return e
}

// Rebuild recomputes the leaderboard from the source and publishes it.
func (e *Engine) Rebuild(ctx context.Context) (models.Leaderboard, error) {
	e.rebuild.Lock()
	defer e.rebuild.Unlock()

	markets, err := e.source.ListMarkets(ctx)
	if err != nil {
		return models.Leaderboard{}, fmt.Errorf("failed to list markets: %w", err)
	}
	predictions, err := e.source.ListPredictions(ctx)
	if err != nil {
		return models.Leaderboard{}, fmt.Errorf("failed to list predictions: %w", err)
	}
	forecasters, err := e.source.ListForecasters(ctx)
	if err != nil {
		return models.Leaderboard{}, fmt.Errorf("failed to list forecasters: %w", err)
	}

	board := Compute(markets, predictions, forecasters, e.now())
	e.current.Store(&board)
	return board, nil
}

// Leaderboard returns the currently published ranking.
func (e *Engine) Leaderboard() models.Leaderboard {
	board := *e.current.Load()
	board.Entries = append([]models.LeaderboardEntry(nil), board.Entries...)
	if board.Entries == nil {
		board.Entries = []models.LeaderboardEntry{}
	}
	return board
}
