package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// ListForecasters returns every registered forecaster.
func (s *Storage) ListForecasters(ctx context.Context) ([]models.Forecaster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, display_name, created_at FROM forecasters ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasters: %w", err)
	}
	defer rows.Close()

	var out []models.Forecaster
	for rows.Next() {
		var f models.Forecaster
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.DisplayName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan forecaster: %w", err)
		}
		f.CreatedAt = fromNanos(createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListMarkets returns every market, resolved or not.
func (s *Storage) ListMarkets(ctx context.Context) ([]models.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, category, status, created_at, close_date,
			outcome, resolution_source, resolution_notes, resolved_at
		FROM markets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var out []models.Market
	for rows.Next() {
		var m models.Market
		var status, source, notes string
		var createdAt int64
		var closeDate, resolvedAt sql.NullInt64
		var outcome sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Question, &m.Category, &status, &createdAt, &closeDate,
			&outcome, &source, &notes, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		m.Status = models.MarketStatus(status)
		m.CreatedAt = fromNanos(createdAt)
		if closeDate.Valid {
			m.CloseDate = fromNanos(closeDate.Int64)
		}
		if outcome.Valid && resolvedAt.Valid {
			m.Resolution = &models.Resolution{
				Outcome:    outcome.Float64,
				Source:     source,
				Notes:      notes,
				ResolvedAt: fromNanos(resolvedAt.Int64),
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListPredictions returns every active prediction with its update history.
func (s *Storage) ListPredictions(ctx context.Context) ([]models.Prediction, error) {
	history, err := s.listUpdates(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, forecaster_id, is_anonymous, probability, confidence,
			reasoning, created_at, updated_at
		FROM predictions ORDER BY market_id, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var p models.Prediction
		var confidence string
		var createdAt int64
		var updatedAt sql.NullInt64
		if err := rows.Scan(&p.ID, &p.MarketID, &p.ForecasterID, &p.IsAnonymous, &p.Probability,
			&confidence, &p.Reasoning, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.Confidence = models.Confidence(confidence)
		p.CreatedAt = fromNanos(createdAt)
		if updatedAt.Valid {
			t := fromNanos(updatedAt.Int64)
			p.UpdatedAt = &t
		}
		p.History = history[p.ID]
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Storage) listUpdates(ctx context.Context) (map[string][]models.PredictionUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prediction_id, prior_value, new_value, reasoning, sources, updated_at
		FROM prediction_updates ORDER BY prediction_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction updates: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.PredictionUpdate)
	for rows.Next() {
		var id, sources string
		var u models.PredictionUpdate
		var updatedAt int64
		if err := rows.Scan(&id, &u.PriorValue, &u.NewValue, &u.Reasoning, &sources, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction update: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &u.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources of prediction %s: %w", id, err)
		}
		u.UpdatedAt = fromNanos(updatedAt)
		out[id] = append(out[id], u)
	}
	return out, rows.Err()
}

// ListSnapshots returns every stored snapshot, oldest bucket first per series.
// InProgress is not persisted; the snapshot store derives it on load.
func (s *Storage) ListSnapshots(ctx context.Context) ([]models.OddsSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, period, bucket_start, captured_at, prediction_count,
			median, mean, std_deviation, probability, decimal_odds, fractional,
			confidence_high, confidence_medium, confidence_low,
			range_0_25, range_25_50, range_50_75, range_75_100
		FROM odds_snapshots ORDER BY market_id, period, bucket_start`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.OddsSnapshot
	for rows.Next() {
		var snap models.OddsSnapshot
		var period string
		var bucketStart, capturedAt int64
		var median, mean, stdDev, probability, decimal sql.NullFloat64
		var fractional sql.NullString
		if err := rows.Scan(&snap.ID, &snap.MarketID, &period, &bucketStart, &capturedAt, &snap.PredictionCount,
			&median, &mean, &stdDev, &probability, &decimal, &fractional,
			&snap.Confidence.High, &snap.Confidence.Medium, &snap.Confidence.Low,
			&snap.Distribution.Range0To25, &snap.Distribution.Range25To50,
			&snap.Distribution.Range50To75, &snap.Distribution.Range75To100); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Period = models.Period(period)
		snap.BucketStart = fromNanos(bucketStart)
		snap.CapturedAt = fromNanos(capturedAt)
		snap.Median = floatPtr(median)
		snap.Mean = floatPtr(mean)
		snap.StdDeviation = floatPtr(stdDev)
		snap.Odds.Probability = floatPtr(probability)
		snap.Odds.Decimal = floatPtr(decimal)
		if fractional.Valid {
			f := fractional.String
			snap.Odds.Fractional = &f
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ListChangeEvents returns the full change log in append order per market.
func (s *Storage) ListChangeEvents(ctx context.Context) ([]models.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, seq, ts, trigger_type, prediction_count, probability, decimal_odds, change
		FROM change_events ORDER BY market_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query change events: %w", err)
	}
	defer rows.Close()

	var out []models.ChangeEvent
	for rows.Next() {
		var c models.ChangeEvent
		var trigger string
		var ts int64
		var probability, decimal sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.MarketID, &c.Sequence, &ts, &trigger, &c.PredictionCount,
			&probability, &decimal, &c.Change); err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		c.Timestamp = fromNanos(ts)
		c.TriggerType = models.TriggerType(trigger)
		c.Probability = floatPtr(probability)
		c.DecimalOdds = floatPtr(decimal)
		out = append(out, c)
	}
	return out, rows.Err()
}
