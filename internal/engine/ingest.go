package engine

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/forecastodds/internal/logger"
	"github.com/rewired-gh/forecastodds/internal/models"
	"github.com/rewired-gh/forecastodds/internal/storage"
)

// PredictionInput is a submitted or edited prediction.
type PredictionInput struct {
	MarketID       string    `json:"marketId"`
	ForecasterID   string    `json:"forecasterId,omitempty"`
	AnonymousToken string    `json:"anonymousToken,omitempty"`
	IsAnonymous    bool      `json:"isAnonymous"`
	Probability    float64   `json:"probability"`
	Confidence     string    `json:"confidence"`
	Reasoning      string    `json:"reasoning,omitempty"`
	Sources        []string  `json:"sources,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ResolutionInput fixes the outcome of an open market.
type ResolutionInput struct {
	MarketID         string    `json:"marketId"`
	Outcome          float64   `json:"outcome"`
	ResolutionSource string    `json:"resolutionSource,omitempty"`
	ResolutionNotes  string    `json:"resolutionNotes,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// SubmitResult is what a prediction write produced.
type SubmitResult struct {
	Prediction models.Prediction
	Change     models.ChangeEvent
}

// RegisterForecaster stores a new forecaster. ID and CreatedAt are filled in
// when empty.
func (e *Engine) RegisterForecaster(ctx context.Context, f models.Forecaster) (models.Forecaster, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = e.now()
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.DisplayName = strings.TrimSpace(f.DisplayName)
	if err := f.Validate(); err != nil {
		return models.Forecaster{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.forecasters[f.ID]; exists {
		return models.Forecaster{}, fmt.Errorf("%w: forecaster %s already registered", models.ErrInvalidState, f.ID)
	}
	if err := e.repo.SaveForecaster(ctx, &f); err != nil {
		return models.Forecaster{}, fmt.Errorf("failed to save forecaster: %w", err)
	}
	e.forecasters[f.ID] = f
	return f, nil
}

// RegisterMarket stores a new market in the proposed or open state.
func (e *Engine) RegisterMarket(ctx context.Context, m models.Market) (models.Market, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = models.StatusProposed
	}
	if m.Status != models.StatusProposed && m.Status != models.StatusOpen {
		return models.Market{}, fmt.Errorf("%w: new market must be proposed or open, got %q", models.ErrValidation, m.Status)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = e.now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	if !m.CloseDate.IsZero() {
		m.CloseDate = m.CloseDate.UTC()
	}
	m.Resolution = nil
	if err := m.Validate(); err != nil {
		return models.Market{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.markets[m.ID]; exists {
		return models.Market{}, fmt.Errorf("%w: market %s already registered", models.ErrInvalidState, m.ID)
	}
	if err := e.repo.SaveMarket(ctx, &m); err != nil {
		return models.Market{}, fmt.Errorf("failed to save market: %w", err)
	}

	st := &marketState{}
	summary, buckets, _ := aggregate(nil)
	st.view.Store(&View{Market: m, Predictions: map[string]models.Prediction{}, Summary: summary, Buckets: buckets})
	e.markets[m.ID] = st
	logger.Info("registered market %s (%s): %s", m.ID, m.Status, m.Question)
	return m, nil
}

// OpenMarket moves a proposed market to open.
func (e *Engine) OpenMarket(ctx context.Context, marketID string) (models.Market, error) {
	return e.transition(ctx, marketID, models.StatusOpen)
}

// RejectMarket moves a proposed market to rejected.
func (e *Engine) RejectMarket(ctx context.Context, marketID string) (models.Market, error) {
	return e.transition(ctx, marketID, models.StatusRejected)
}

func (e *Engine) transition(ctx context.Context, marketID string, next models.MarketStatus) (models.Market, error) {
	st, ok := e.state(marketID)
	if !ok {
		return models.Market{}, fmt.Errorf("%w: %s", models.ErrMarketNotFound, marketID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	view := st.view.Load()
	if !view.Market.Status.CanTransition(next) {
		return models.Market{}, fmt.Errorf("%w: market %s cannot move from %s to %s",
			models.ErrInvalidState, marketID, view.Market.Status, next)
	}

	market := view.Market
	market.Status = next
	if err := e.repo.SaveMarket(ctx, &market); err != nil {
		return models.Market{}, fmt.Errorf("failed to save market: %w", err)
	}

	updated := *view
	updated.Market = market
	st.view.Store(&updated)
	logger.Info("market %s is now %s", marketID, next)
	return market, nil
}

// SubmitPrediction creates or edits the single active prediction of a
// forecaster (or anonymous token) on an open market.
func (e *Engine) SubmitPrediction(ctx context.Context, in PredictionInput) (SubmitResult, error) {
	if err := models.ValidateProbability(in.Probability); err != nil {
		return SubmitResult{}, err
	}
	confidence, err := models.ParseConfidence(in.Confidence)
	if err != nil {
		return SubmitResult{}, err
	}

	identity := in.ForecasterID
	if in.IsAnonymous {
		if in.AnonymousToken != "" {
			identity = in.AnonymousToken
		}
		if identity == "" {
			return SubmitResult{}, fmt.Errorf("%w: anonymous prediction needs an anonymous token", models.ErrValidation)
		}
	} else {
		if identity == "" {
			return SubmitResult{}, fmt.Errorf("%w: forecaster ID is required", models.ErrValidation)
		}
		if _, ok := e.Forecaster(identity); !ok {
			return SubmitResult{}, fmt.Errorf("%w: %s", models.ErrForecasterNotFound, identity)
		}
	}

	st, ok := e.state(in.MarketID)
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %s", models.ErrMarketNotFound, in.MarketID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	view := st.view.Load()
	if view.Market.Status != models.StatusOpen {
		return SubmitResult{}, fmt.Errorf("%w: market %s is %s, not open", models.ErrInvalidState, in.MarketID, view.Market.Status)
	}

	at := e.eventTime(st, in.Timestamp)
	pred := models.Prediction{
		MarketID:     in.MarketID,
		ForecasterID: identity,
		IsAnonymous:  in.IsAnonymous,
	}
	trigger := models.TriggerNewPrediction
	if existing, ok := view.Predictions[pred.Key()]; ok {
		pred = existing.Clone()
		pred.Apply(in.Probability, confidence, in.Reasoning, in.Sources, at)
		pred.IsAnonymous = in.IsAnonymous
		trigger = models.TriggerUpdatedPrediction
	} else {
		pred.ID = uuid.New().String()
		pred.Probability = in.Probability
		pred.Confidence = confidence
		pred.Reasoning = in.Reasoning
		pred.CreatedAt = at
	}
	if err := pred.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	active := maps.Clone(view.Predictions)
	if active == nil {
		active = make(map[string]models.Prediction, 1)
	}
	active[pred.Key()] = pred
	summary, buckets, err := aggregate(active)
	if err != nil {
		return SubmitResult{}, err
	}

	change, err := e.changes.Prepare(in.MarketID, at, trigger, summary)
	if err != nil {
		return SubmitResult{}, err
	}
	snaps, err := e.snapshots.Prepare(in.MarketID, at, summary, buckets)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := e.repo.ApplyBatch(ctx, storage.Batch{Prediction: &pred, Change: &change, Snapshots: snaps}); err != nil {
		return SubmitResult{}, fmt.Errorf("failed to persist prediction: %w", err)
	}

	e.commit(ctx, st, &View{Market: view.Market, Predictions: active, Summary: summary, Buckets: buckets}, change, snaps)

	if e.detector != nil {
		if alert, ok := e.detector.Observe(view.Market.Question, change); ok {
			logger.Info("consensus of market %s moved %.1f points (%s, %.4f nats)", alert.MarketID, alert.Magnitude, alert.Direction, alert.Information)
			e.enqueue(notification{alert: &alert})
		}
	}

	return SubmitResult{Prediction: pred.Clone(), Change: change}, nil
}

// ResolveMarket fixes the outcome of an open market, then rebuilds the
// leaderboard. Resolution is write-once.
func (e *Engine) ResolveMarket(ctx context.Context, in ResolutionInput) (models.Market, error) {
	if err := models.ValidateProbability(in.Outcome); err != nil {
		return models.Market{}, fmt.Errorf("invalid outcome: %w", err)
	}

	market, err := e.resolve(ctx, in)
	if err != nil {
		return models.Market{}, err
	}

	if e.detector != nil {
		e.detector.Forget(market.ID)
	}

	board, err := e.scores.Rebuild(ctx)
	if err != nil {
		logger.Error("leaderboard rebuild after resolving %s failed, keeping previous board: %v", market.ID, err)
		board = e.scores.Leaderboard()
	} else {
		logger.Info("leaderboard rebuilt after resolving %s: %d forecasters ranked", market.ID, len(board.Entries))
	}
	e.enqueue(notification{resolved: &market, board: board})

	return market, nil
}

func (e *Engine) resolve(ctx context.Context, in ResolutionInput) (models.Market, error) {
	st, ok := e.state(in.MarketID)
	if !ok {
		return models.Market{}, fmt.Errorf("%w: %s", models.ErrMarketNotFound, in.MarketID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	view := st.view.Load()
	if !view.Market.Status.CanTransition(models.StatusResolved) {
		return models.Market{}, fmt.Errorf("%w: market %s is %s and cannot be resolved",
			models.ErrInvalidState, in.MarketID, view.Market.Status)
	}

	at := e.eventTime(st, in.Timestamp)
	market := view.Market
	market.Status = models.StatusResolved
	market.Resolution = &models.Resolution{
		Outcome:    in.Outcome,
		Source:     in.ResolutionSource,
		Notes:      in.ResolutionNotes,
		ResolvedAt: at,
	}
	if err := market.Validate(); err != nil {
		return models.Market{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	change, err := e.changes.Prepare(in.MarketID, at, models.TriggerResolution, view.Summary)
	if err != nil {
		return models.Market{}, err
	}
	snaps, err := e.snapshots.Prepare(in.MarketID, at, view.Summary, view.Buckets)
	if err != nil {
		return models.Market{}, err
	}

	if err := e.repo.ApplyBatch(ctx, storage.Batch{Market: &market, Change: &change, Snapshots: snaps}); err != nil {
		return models.Market{}, fmt.Errorf("failed to persist resolution: %w", err)
	}

	updated := *view
	updated.Market = market
	e.commit(ctx, st, &updated, change, snaps)
	logger.Info("resolved market %s with outcome %.0f", market.ID, in.Outcome)
	return market, nil
}
