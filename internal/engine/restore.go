package engine

import (
	"context"
	"fmt"

	"github.com/rewired-gh/forecastodds/internal/logger"
	"github.com/rewired-gh/forecastodds/internal/models"
)

// Restore rebuilds all in-memory state from the repository and republishes
// the leaderboard. It must run before the engine accepts writes.
func (e *Engine) Restore(ctx context.Context) error {
	forecasters, err := e.repo.ListForecasters(ctx)
	if err != nil {
		return fmt.Errorf("failed to load forecasters: %w", err)
	}
	markets, err := e.repo.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load markets: %w", err)
	}
	predictions, err := e.repo.ListPredictions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load predictions: %w", err)
	}
	snapshots, err := e.repo.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}
	changes, err := e.repo.ListChangeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load change events: %w", err)
	}

	byMarket := make(map[string]map[string]models.Prediction, len(markets))
	for _, p := range predictions {
		if byMarket[p.MarketID] == nil {
			byMarket[p.MarketID] = make(map[string]models.Prediction)
		}
		byMarket[p.MarketID][p.Key()] = p
	}

	states := make(map[string]*marketState, len(markets))
	for _, m := range markets {
		active := byMarket[m.ID]
		if active == nil {
			active = make(map[string]models.Prediction)
		}
		summary, buckets, err := aggregate(active)
		if err != nil {
			return fmt.Errorf("market %s has invalid predictions: %w", m.ID, err)
		}
		st := &marketState{}
		st.view.Store(&View{Market: m, Predictions: active, Summary: summary, Buckets: buckets})
		states[m.ID] = st
	}
	for _, c := range changes {
		if st, ok := states[c.MarketID]; ok && c.Timestamp.After(st.lastEvent) {
			st.lastEvent = c.Timestamp
		}
	}

	byID := make(map[string]models.Forecaster, len(forecasters))
	for _, f := range forecasters {
		byID[f.ID] = f
	}

	e.mu.Lock()
	e.markets = states
	e.forecasters = byID
	e.mu.Unlock()

	e.changes.Load(changes)
	e.snapshots.Load(snapshots)

	if _, err := e.scores.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}

	logger.Info("restored %d markets, %d forecasters, %d predictions, %d snapshots, %d change events",
		len(markets), len(forecasters), len(predictions), len(snapshots), len(changes))
	return nil
}

// RefreshLeaderboard rebuilds the leaderboard from the repository. A failed
// rebuild keeps the previous board published.
func (e *Engine) RefreshLeaderboard(ctx context.Context) (models.Leaderboard, error) {
	return e.scores.Rebuild(ctx)
}

// RotateSnapshots prunes sealed snapshot history beyond maxSealed per
// (market, period) in storage and memory.
func (e *Engine) RotateSnapshots(ctx context.Context, maxSealed int) error {
	removed, err := e.repo.RotateSnapshots(ctx, maxSealed)
	if err != nil {
		return fmt.Errorf("failed to rotate stored snapshots: %w", err)
	}
	dropped := e.snapshots.Rotate(maxSealed)
	logger.Info("snapshot rotation removed %d stored and %d in-memory snapshots", removed, dropped)
	return nil
}
