// Package snapshot keeps the time-bucketed odds history of every market.
//
// For each (market, period) the store holds one in-progress bucket plus the
// sealed buckets before it. Recording into the in-progress bucket overwrites
// it; recording into a later bucket seals it and opens a new one. Buckets
// without activity are never created, so history is sparse.
package snapshot

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/forecastodds/internal/distribution"
	"github.com/rewired-gh/forecastodds/internal/models"
	"github.com/rewired-gh/forecastodds/internal/odds"
)

type seriesKey struct {
	marketID string
	period   models.Period
}

type series struct {
	sealed  []models.OddsSnapshot // ascending by bucket
	current *models.OddsSnapshot
}

// Store provides thread-safe in-memory snapshot history.
type Store struct {
	mu     sync.RWMutex
	series map[seriesKey]*series
}

// New creates an empty Store.
func New() *Store {
	return &Store{series: make(map[seriesKey]*series)}
}

// Record rolls the summary captured at `at` into the bucket of every period
// and returns the resulting in-progress snapshots, one per period.
func (s *Store) Record(marketID string, at time.Time, summary odds.Summary, buckets distribution.Result) ([]models.OddsSnapshot, error) {
	snaps, err := s.Prepare(marketID, at, summary, buckets)
	if err != nil {
		return nil, err
	}
	s.Commit(snaps)
	return snaps, nil
}

// Prepare builds the snapshots Record would write without changing the store.
// A capture earlier than any in-progress bucket of the market fails with
// ErrOutOfOrder.
//
// Prepare and Commit must be serialized per market by the caller.
func (s *Store) Prepare(marketID string, at time.Time, summary odds.Summary, buckets distribution.Result) ([]models.OddsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.OddsSnapshot, 0, len(models.Periods))
	for _, period := range models.Periods {
		start, err := BucketStart(period, at)
		if err != nil {
			return nil, err
		}

		snap := build(marketID, period, start, at, summary, buckets)
		snap.ID = uuid.New().String()
		if ser, ok := s.series[seriesKey{marketID, period}]; ok && ser.current != nil {
			switch {
			case start.Before(ser.current.BucketStart):
				return nil, fmt.Errorf("%w: %s bucket %s is before in-progress bucket %s",
					models.ErrOutOfOrder, period, start.Format(time.RFC3339), ser.current.BucketStart.Format(time.RFC3339))
			case start.Equal(ser.current.BucketStart):
				snap.ID = ser.current.ID
			}
		}
		out = append(out, snap)
	}
	return out, nil
}

// Commit applies snapshots built by Prepare. A snapshot for the in-progress
// bucket overwrites it; one for a later bucket seals the in-progress bucket.
func (s *Store) Commit(snaps []models.OddsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		snap := snap
		key := seriesKey{snap.MarketID, snap.Period}
		ser, ok := s.series[key]
		if !ok {
			ser = &series{}
			s.series[key] = ser
		}
		if ser.current != nil && snap.BucketStart.After(ser.current.BucketStart) {
			sealed := *ser.current
			sealed.InProgress = false
			ser.sealed = append(ser.sealed, sealed)
		}
		snap.InProgress = true
		ser.current = &snap
	}
}

func build(marketID string, period models.Period, start, at time.Time, summary odds.Summary, buckets distribution.Result) models.OddsSnapshot {
	return models.OddsSnapshot{
		MarketID:        marketID,
		Period:          period,
		BucketStart:     start,
		CapturedAt:      at.UTC(),
		PredictionCount: summary.PredictionCount,
		Median:          summary.Statistics.Median,
		Mean:            summary.Statistics.Mean,
		StdDeviation:    summary.Statistics.StdDeviation,
		Odds: models.SnapshotOdds{
			Probability: summary.Odds.Probability,
			Decimal:     summary.Odds.Decimal,
			Fractional:  summary.Odds.Fractional,
		},
		Confidence:   buckets.Confidence,
		Distribution: buckets.Distribution,
		InProgress:   true,
	}
}

// History returns up to limit sealed snapshots newest first. When the
// in-progress bucket still contains now it is prepended as the most recent
// entry; once its period has elapsed it counts as sealed. limit <= 0 returns
// every sealed snapshot. Unknown series yield an empty slice.
func (s *Store) History(marketID string, period models.Period, limit int, now time.Time) ([]models.OddsSnapshot, error) {
	nowStart, err := BucketStart(period, now)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ser, ok := s.series[seriesKey{marketID, period}]
	if !ok {
		return []models.OddsSnapshot{}, nil
	}

	sealed := ser.sealed
	var live *models.OddsSnapshot
	if ser.current != nil {
		if ser.current.BucketStart.Before(nowStart) {
			elapsed := *ser.current
			elapsed.InProgress = false
			sealed = append(sealed[:len(sealed):len(sealed)], elapsed)
		} else {
			live = ser.current
		}
	}

	n := len(sealed)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]models.OddsSnapshot, 0, n+1)
	if live != nil {
		result = append(result, *live)
	}
	for i := len(sealed) - 1; i >= len(sealed)-n; i-- {
		result = append(result, sealed[i])
	}
	return result, nil
}

// Load replaces the history of every market in snapshots. The latest bucket of
// each series becomes the in-progress bucket.
func (s *Store) Load(snapshots []models.OddsSnapshot) {
	grouped := make(map[seriesKey][]models.OddsSnapshot)
	for _, snap := range snapshots {
		key := seriesKey{snap.MarketID, snap.Period}
		grouped[key] = append(grouped[key], snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, snaps := range grouped {
		sort.Slice(snaps, func(i, j int) bool {
			return snaps[i].BucketStart.Before(snaps[j].BucketStart)
		})
		for i := range snaps {
			snaps[i].InProgress = false
		}
		last := snaps[len(snaps)-1]
		last.InProgress = true
		s.series[key] = &series{
			sealed:  snaps[:len(snaps)-1],
			current: &last,
		}
	}
}

// Rotate removes the oldest sealed snapshots of every series beyond maxSealed
// and returns how many were dropped.
func (s *Store) Rotate(maxSealed int) int {
	if maxSealed < 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for _, ser := range s.series {
		if len(ser.sealed) > maxSealed {
			start := len(ser.sealed) - maxSealed
			dropped += start
			kept := make([]models.OddsSnapshot, maxSealed)
			copy(kept, ser.sealed[start:])
			ser.sealed = kept
		}
	}
	return dropped
}
