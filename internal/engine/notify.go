package engine

import (
	"context"

	"github.com/rewired-gh/forecastodds/internal/alerts"
	"github.com/rewired-gh/forecastodds/internal/logger"
	"github.com/rewired-gh/forecastodds/internal/models"
)

const outboxSize = 256

// notification is either a movement alert or a resolution.
type notification struct {
	alert    *alerts.Alert
	resolved *models.Market
	board    models.Leaderboard
}

// enqueue hands n to Run without blocking the write path.
func (e *Engine) enqueue(n notification) {
	if e.notifier == nil {
		return
	}
	select {
	case e.outbox <- n:
	default:
		logger.Warn("notification queue full, dropping notification")
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-e.outbox:
			e.deliver(ctx, n)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, n notification) {
	switch {
	case n.alert != nil:
		if err := e.notifier.NotifyMovement(ctx, *n.alert); err != nil {
			logger.Error("failed to send movement alert for market %s: %v", n.alert.MarketID, err)
			return
		}
		logger.Info("sent movement alert for market %s", n.alert.MarketID)
	case n.resolved != nil:
		if err := e.notifier.NotifyResolution(ctx, *n.resolved, n.board); err != nil {
			logger.Error("failed to send resolution of market %s: %v", n.resolved.ID, err)
			return
		}
		logger.Info("sent resolution of market %s", n.resolved.ID)
	}
}
