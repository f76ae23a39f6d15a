// Package engine is the write path of forecastodds.
//
// It owns the registry of markets and forecasters. Every odds-affecting event
// (prediction submitted or edited, market resolved) is handled under the
// market's mutex in three steps: derive the new aggregate (odds, distribution,
// change event, snapshots) without touching shared state, persist all rows in
// one storage transaction, then commit the in-memory change log, snapshot store
// and the market's published view. A storage failure therefore leaves both
// storage and memory as they were.
//
// Readers never take the market mutex: they load the immutable View published
// through an atomic pointer.
package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rewired-gh/forecastodds/internal/alerts"
	"github.com/rewired-gh/forecastodds/internal/changelog"
	"github.com/rewired-gh/forecastodds/internal/distribution"
	"github.com/rewired-gh/forecastodds/internal/logger"
	"github.com/rewired-gh/forecastodds/internal/models"
	"github.com/rewired-gh/forecastodds/internal/odds"
	"github.com/rewired-gh/forecastodds/internal/scoring"
	"github.com/rewired-gh/forecastodds/internal/snapshot"
	"github.com/rewired-gh/forecastodds/internal/storage"
)

// Repository is the persistence the engine writes through and restores from.
type Repository interface {
	scoring.Source
	SaveForecaster(ctx context.Context, f *models.Forecaster) error
	SaveMarket(ctx context.Context, m *models.Market) error
	ApplyBatch(ctx context.Context, b storage.Batch) error
	ListSnapshots(ctx context.Context) ([]models.OddsSnapshot, error)
	ListChangeEvents(ctx context.Context) ([]models.ChangeEvent, error)
	RotateSnapshots(ctx context.Context, maxSealed int) (int64, error)
}

// ChangeSink receives every committed change event.
type ChangeSink interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Notifier delivers alerts and resolution summaries.
type Notifier interface {
	NotifyMovement(ctx context.Context, alert alerts.Alert) error
	NotifyResolution(ctx context.Context, market models.Market, board models.Leaderboard) error
}

// View is the published, immutable state of one market.
type View struct {
	Market      models.Market
	Predictions map[string]models.Prediction // keyed by Prediction.Key()
	Summary     odds.Summary
	Buckets     distribution.Result
}

// ActivePredictions returns the active predictions ordered by creation time.
func (v *View) ActivePredictions() []models.Prediction {
	out := make([]models.Prediction, 0, len(v.Predictions))
	for _, p := range v.Predictions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type marketState struct {
	mu        sync.Mutex
	view      atomic.Pointer[View]
	lastEvent time.Time // guarded by mu
}

// Engine applies ingest events to the aggregate state.
type Engine struct {
	repo      Repository
	snapshots *snapshot.Store
	changes   *changelog.Log
	scores    *scoring.Engine

	sink     ChangeSink
	notifier Notifier
	detector *alerts.Detector
	outbox   chan notification

	mu          sync.RWMutex
	markets     map[string]*marketState
	forecasters map[string]models.Forecaster

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithChangeSink publishes every committed change event to sink.
func WithChangeSink(sink ChangeSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithNotifier sends resolutions, and movement alerts when a detector is set,
// through n. Notifications are delivered by Run.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithDetector evaluates every change event for significant movement.
func WithDetector(d *alerts.Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithClock overrides the time source used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine backed by repo.
func New(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		snapshots:   snapshot.New(),
		changes:     changelog.New(),
		scores:      scoring.NewEngine(repo),
		outbox:      make(chan notification, outboxSize),
		markets:     make(map[string]*marketState),
		forecasters: make(map[string]models.Forecaster),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshots returns the snapshot store the engine writes to.
func (e *Engine) Snapshots() *snapshot.Store { return e.snapshots }

// Changes returns the change log the engine writes to.
func (e *Engine) Changes() *changelog.Log { return e.changes }

// Scores returns the leaderboard publisher.
func (e *Engine) Scores() *scoring.Engine { return e.scores }

// Market returns the published view of a market.
func (e *Engine) Market(marketID string) (*View, bool) {
	st, ok := e.state(marketID)
	if !ok {
		return nil, false
	}
	return st.view.Load(), true
}

// Forecaster returns a registered forecaster.
func (e *Engine) Forecaster(id string) (models.Forecaster, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.forecasters[id]
	return f, ok
}

func (e *Engine) state(marketID string) (*marketState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.markets[marketID]
	return st, ok
}

// eventTime picks the time an event is recorded at: the requested time (or
// now), clamped so it never precedes the market's last event.
func (e *Engine) eventTime(st *marketState, requested time.Time) time.Time {
	at := requested
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()
	if at.Before(st.lastEvent) {
		logger.Debug("clamping event time %s to last event %s", at.Format(time.RFC3339Nano), st.lastEvent.Format(time.RFC3339Nano))
		at = st.lastEvent
	}
	return at
}

// aggregate computes the consensus and histogram of a prediction set.
func aggregate(predictions map[string]models.Prediction) (odds.Summary, distribution.Result, error) {
	probs := make([]float64, 0, len(predictions))
	entries := make([]distribution.Entry, 0, len(predictions))
	for _, p := range predictions {
		probs = append(probs, p.Probability)
		entries = append(entries, distribution.Entry{Probability: p.Probability, Confidence: p.Confidence})
	}
	buckets, err := distribution.Bucket(entries)
	if err != nil {
		return odds.Summary{}, distribution.Result{}, err
	}
	return odds.Calculate(probs), buckets, nil
}

// commit publishes derived rows after they were persisted. Called with st.mu held.
//
// The change log, snapshot store and view are published in that order, one
// after another. A reader that loads the view, then snapshots, then changes
// may see a change newer than the view it started from, but never a snapshot
// newer than the newest change.
func (e *Engine) commit(ctx context.Context, st *marketState, view *View, change models.ChangeEvent, snaps []models.OddsSnapshot) {
	if err := e.changes.Commit(change); err != nil {
		// Prepare ran under the same lock; this indicates a bug, not bad input.
		logger.Error("change log rejected prepared event %s: %v", change.ID, err)
	}
	e.snapshots.Commit(snaps)
	st.view.Store(view)
	st.lastEvent = change.Timestamp

	logger.WithFields(logger.Fields{
		"market_id": change.MarketID,
		"sequence":  change.Sequence,
		"trigger":   change.TriggerType,
		"count":     change.PredictionCount,
		"change":    change.Change,
	}).Debug("change committed")

	if e.sink != nil {
		if err := e.sink.Publish(ctx, change); err != nil {
			logger.Warn("failed to publish change %d of market %s: %v", change.Sequence, change.MarketID, err)
		}
	}
}
