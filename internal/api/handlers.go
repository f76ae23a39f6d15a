// Package api exposes the engine over HTTP with chi.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rewired-gh/forecastodds/internal/analytics"
	"github.com/rewired-gh/forecastodds/internal/engine"
	"github.com/rewired-gh/forecastodds/internal/logger"
	"github.com/rewired-gh/forecastodds/internal/models"
)

const maxLimit = 1000

// Writer is the ingest side used by the handlers.
type Writer interface {
	RegisterForecaster(ctx context.Context, f models.Forecaster) (models.Forecaster, error)
	RegisterMarket(ctx context.Context, m models.Market) (models.Market, error)
	OpenMarket(ctx context.Context, marketID string) (models.Market, error)
	RejectMarket(ctx context.Context, marketID string) (models.Market, error)
	SubmitPrediction(ctx context.Context, in engine.PredictionInput) (engine.SubmitResult, error)
	ResolveMarket(ctx context.Context, in engine.ResolutionInput) (models.Market, error)
}

// Reader is the query side used by the handlers.
type Reader interface {
	CurrentOdds(marketID string) (analytics.CurrentOdds, error)
	History(marketID string, period models.Period, limit, changes int) (analytics.Analytics, error)
	RecentChanges(marketID string, k int) ([]models.ChangeEvent, error)
	Leaderboard() models.Leaderboard
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	writer Writer
	reader Reader
	db     Pinger

	historyLimit  int
	recentChanges int
}

// NewHandler creates a new handler with dependencies. historyLimit and
// recentChanges are used when a request omits them.
func NewHandler(writer Writer, reader Reader, db Pinger, historyLimit, recentChanges int) *Handler {
	return &Handler{
		writer:        writer,
		reader:        reader,
		db:            db,
		historyLimit:  historyLimit,
		recentChanges: recentChanges,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unhealthy", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "forecastodds",
	})
}

// GetCurrentOdds returns the live consensus of a market
func (h *Handler) GetCurrentOdds(w http.ResponseWriter, r *http.Request) {
	result, err := h.reader.CurrentOdds(chi.URLParam(r, "marketID"))
	if err != nil {
		respondFailure(w, "failed to retrieve odds", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetAnalytics returns bucketed history and recent changes
// Query params: period (default daily), limit, changes
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	period := models.PeriodDaily
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := models.ParsePeriod(raw)
		if err != nil {
			respondFailure(w, "invalid period", err)
			return
		}
		period = p
	}
	limit := clampLimit(parseIntParam(r, "limit", h.historyLimit))
	changes := clampLimit(parseIntParam(r, "changes", h.recentChanges))

	result, err := h.reader.History(chi.URLParam(r, "marketID"), period, limit, changes)
	if err != nil {
		respondFailure(w, "failed to retrieve analytics", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetChanges returns the most recent change events of a market
// Query params: limit
func (h *Handler) GetChanges(w http.ResponseWriter, r *http.Request) {
	limit := clampLimit(parseIntParam(r, "limit", h.recentChanges))

	changes, err := h.reader.RecentChanges(chi.URLParam(r, "marketID"), limit)
	if err != nil {
		respondFailure(w, "failed to retrieve changes", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changes": changes,
		"count":   len(changes),
	})
}

// GetLeaderboard returns the published ranking as an ordered list
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries := h.reader.Leaderboard().Entries
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// CreateForecaster registers a forecaster
func (h *Handler) CreateForecaster(w http.ResponseWriter, r *http.Request) {
	var f models.Forecaster
	if !decode(w, r, &f) {
		return
	}
	created, err := h.writer.RegisterForecaster(r.Context(), f)
	if err != nil {
		respondFailure(w, "failed to register forecaster", err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// CreateMarket registers a market
func (h *Handler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var m models.Market
	if !decode(w, r, &m) {
		return
	}
	created, err := h.writer.RegisterMarket(r.Context(), m)
	if err != nil {
		respondFailure(w, "failed to register market", err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// OpenMarket moves a proposed market to open
func (h *Handler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.writer.OpenMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		respondFailure(w, "failed to open market", err)
		return
	}
	respondJSON(w, http.StatusOK, market)
}

// RejectMarket moves a proposed market to rejected
func (h *Handler) RejectMarket(w http.ResponseWriter, r *http.Request) {
	market, err := h.writer.RejectMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		respondFailure(w, "failed to reject market", err)
		return
	}
	respondJSON(w, http.StatusOK, market)
}

// SubmitPrediction creates or edits a prediction on a market
func (h *Handler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	var in engine.PredictionInput
	if !decode(w, r, &in) {
		return
	}
	in.MarketID = chi.URLParam(r, "marketID")

	result, err := h.writer.SubmitPrediction(r.Context(), in)
	if err != nil {
		respondFailure(w, "failed to submit prediction", err)
		return
	}

	status := http.StatusOK
	if result.Change.TriggerType == models.TriggerNewPrediction {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]interface{}{
		"prediction": result.Prediction,
		"change":     result.Change,
	})
}

// ResolveMarket fixes a market's outcome
func (h *Handler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var in engine.ResolutionInput
	if !decode(w, r, &in) {
		return
	}
	in.MarketID = chi.URLParam(r, "marketID")

	market, err := h.writer.ResolveMarket(r.Context(), in)
	if err != nil {
		respondFailure(w, "failed to resolve market", err)
		return
	}
	respondJSON(w, http.StatusOK, market)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrMarketNotFound), errors.Is(err, models.ErrForecasterNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrOutOfOrder):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func clampLimit(n int) int {
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	valueStr := r.URL.Query().Get(param)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("error encoding response: %v", err)
	}
}

// respondFailure answers with the status err maps to.
func respondFailure(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	respondError(w, status, message, err)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err != nil {
		if status >= http.StatusInternalServerError {
			logger.Error("%s: %v", message, err)
		} else {
			logger.Debug("%s: %v", message, err)
		}
	}

	errResp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("error encoding error response: %v", err)
	}
}
