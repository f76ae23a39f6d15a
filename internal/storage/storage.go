// Package storage provides SQLite persistence for the forecastodds engine.
// It stores forecasters, markets, active predictions with their update history,
// odds snapshots and the change log, and serves as the source every leaderboard
// rebuild and every restart reads from.
//
// Each ingest event is written in a single transaction (see Batch), so the
// persisted state never holds a prediction without its change event and
// snapshots, or the other way round.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/forecastodds/internal/models"
	_ "modernc.org/sqlite"
)

// Storage provides SQLite-backed persistence.
type Storage struct {
	db *sql.DB
}

// Batch is the set of rows produced by one ingest event.
type Batch struct {
	Market     *models.Market
	Prediction *models.Prediction
	Change     *models.ChangeEvent
	Snapshots  []models.OddsSnapshot
}

// New opens (creating if needed) the database at dbPath and applies the schema.
// If dbPath is empty, uses an OS-appropriate tmp directory. ":memory:" opens a
// private in-memory database.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "forecastodds", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveForecaster inserts a forecaster or updates its display name.
func (s *Storage) SaveForecaster(ctx context.Context, f *models.Forecaster) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid forecaster: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forecasters (id, display_name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`,
		f.ID, f.DisplayName, toNanos(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save forecaster %s: %w", f.ID, err)
	}
	return nil
}

// SaveMarket inserts or replaces a market.
func (s *Storage) SaveMarket(ctx context.Context, m *models.Market) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid market: %w", err)
	}
	if err := saveMarket(ctx, s.db, m); err != nil {
		return err
	}
	return nil
}

// ApplyBatch writes every row of b in one transaction.
func (s *Storage) ApplyBatch(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if b.Market != nil {
		if err := b.Market.Validate(); err != nil {
			return fmt.Errorf("invalid market: %w", err)
		}
		if err := saveMarket(ctx, tx, b.Market); err != nil {
			return err
		}
	}
	if b.Prediction != nil {
		if err := b.Prediction.Validate(); err != nil {
			return fmt.Errorf("invalid prediction: %w", err)
		}
		if err := savePrediction(ctx, tx, b.Prediction); err != nil {
			return err
		}
	}
	if b.Change != nil {
		if err := b.Change.Validate(); err != nil {
			return fmt.Errorf("invalid change event: %w", err)
		}
		if err := insertChange(ctx, tx, b.Change); err != nil {
			return err
		}
	}
	for i := range b.Snapshots {
		if err := b.Snapshots[i].Validate(); err != nil {
			return fmt.Errorf("invalid snapshot: %w", err)
		}
		if err := saveSnapshot(ctx, tx, &b.Snapshots[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RotateSnapshots keeps, per (market, period), the newest maxSealed sealed
// snapshots plus the in-progress one, and returns the number of rows removed.
func (s *Storage) RotateSnapshots(ctx context.Context, maxSealed int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM odds_snapshots WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY market_id, period ORDER BY bucket_start DESC
				) AS rn FROM odds_snapshots
			) WHERE rn > ?
		)`, maxSealed+1)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count rotated snapshots: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveMarket(ctx context.Context, db execer, m *models.Market) error {
	var outcome, resolvedAt any
	var source, notes string
	if m.Resolution != nil {
		outcome = m.Resolution.Outcome
		resolvedAt = toNanos(m.Resolution.ResolvedAt)
		source, notes = m.Resolution.Source, m.Resolution.Notes
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO markets (id, question, category, status, created_at, close_date,
			outcome, resolution_source, resolution_notes, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			category = excluded.category,
			status = excluded.status,
			close_date = excluded.close_date,
			outcome = excluded.outcome,
			resolution_source = excluded.resolution_source,
			resolution_notes = excluded.resolution_notes,
			resolved_at = excluded.resolved_at`,
		m.ID, m.Question, m.Category, string(m.Status), toNanos(m.CreatedAt), nullTime(m.CloseDate),
		outcome, source, notes, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to save market %s: %w", m.ID, err)
	}
	return nil
}

func savePrediction(ctx context.Context, db execer, p *models.Prediction) error {
	var updatedAt any
	if p.UpdatedAt != nil {
		updatedAt = toNanos(*p.UpdatedAt)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO predictions (id, market_id, forecaster_id, is_anonymous, probability,
			confidence, reasoning, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_anonymous = excluded.is_anonymous,
			probability = excluded.probability,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			updated_at = excluded.updated_at`,
		p.ID, p.MarketID, p.ForecasterID, p.IsAnonymous, p.Probability,
		string(p.Confidence), p.Reasoning, toNanos(p.CreatedAt), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save prediction %s: %w", p.ID, err)
	}

	for i, u := range p.History {
		sources, err := json.Marshal(u.Sources)
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT OR IGNORE INTO prediction_updates (prediction_id, seq, prior_value, new_value,
				reasoning, sources, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i+1, u.PriorValue, u.NewValue, u.Reasoning, string(sources), toNanos(u.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to save update %d of prediction %s: %w", i+1, p.ID, err)
		}
	}
	return nil
}

func insertChange(ctx context.Context, db execer, c *models.ChangeEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO change_events (id, market_id, seq, ts, trigger_type, prediction_count,
			probability, decimal_odds, change)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MarketID, c.Sequence, toNanos(c.Timestamp), string(c.TriggerType), c.PredictionCount,
		nullFloat(c.Probability), nullFloat(c.DecimalOdds), c.Change)
	if err != nil {
		return fmt.Errorf("failed to insert change event %s: %w", c.ID, err)
	}
	return nil
}

func saveSnapshot(ctx context.Context, db execer, s *models.OddsSnapshot) error {
	var fractional any
	if s.Odds.Fractional != nil {
		fractional = *s.Odds.Fractional
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO odds_snapshots (id, market_id, period, bucket_start, captured_at, prediction_count,
			median, mean, std_deviation, probability, decimal_odds, fractional,
			confidence_high, confidence_medium, confidence_low,
			range_0_25, range_25_50, range_50_75, range_75_100)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, period, bucket_start) DO UPDATE SET
			captured_at = excluded.captured_at,
			prediction_count = excluded.prediction_count,
			median = excluded.median,
			mean = excluded.mean,
			std_deviation = excluded.std_deviation,
			probability = excluded.probability,
			decimal_odds = excluded.decimal_odds,
			fractional = excluded.fractional,
			confidence_high = excluded.confidence_high,
			confidence_medium = excluded.confidence_medium,
			confidence_low = excluded.confidence_low,
			range_0_25 = excluded.range_0_25,
			range_25_50 = excluded.range_25_50,
			range_50_75 = excluded.range_50_75,
			range_75_100 = excluded.range_75_100`,
		s.ID, s.MarketID, string(s.Period), toNanos(s.BucketStart), toNanos(s.CapturedAt), s.PredictionCount,
		nullFloat(s.Median), nullFloat(s.Mean), nullFloat(s.StdDeviation),
		nullFloat(s.Odds.Probability), nullFloat(s.Odds.Decimal), fractional,
		s.Confidence.High, s.Confidence.Medium, s.Confidence.Low,
		s.Distribution.Range0To25, s.Distribution.Range25To50, s.Distribution.Range50To75, s.Distribution.Range75To100)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", s.ID, err)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
