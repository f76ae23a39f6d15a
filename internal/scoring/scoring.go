// Package scoring ranks forecasters by the accuracy of their predictions on
// resolved markets.
//
// Each non-anonymous active prediction on a resolved market contributes
//
//	brier    = (p/100 − o/100)²
//	accuracy = 1 − |p/100 − o/100|
//
// and a forecaster's scores are the means over every resolved market they
// predicted on. The leaderboard is always rebuilt from the full resolved set,
// never patched, so it cannot drift from the source data.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// Brier returns the squared error of a prediction against an outcome, both in percent.
func Brier(prediction, outcome float64) float64 {
	d := prediction/100 - outcome/100
	return d * d
}

// Accuracy returns 1 − |prediction − outcome| on the fraction scale.
func Accuracy(prediction, outcome float64) float64 {
	return 1 - math.Abs(prediction/100-outcome/100)
}

// unknownCreatedAt ranks forecasters without a profile after every known account.
var unknownCreatedAt = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

type tally struct {
	total    int
	resolved int
	brier    float64
	accuracy float64
}

// Compute builds the ranking from every market, active prediction and
// forecaster. Anonymous predictions are ignored entirely. Only forecasters with
// at least one resolved prediction are ranked.
//
// Order: Brier ascending, then resolved count descending, then account creation
// ascending, then forecaster ID.
func Compute(markets []models.Market, predictions []models.Prediction, forecasters []models.Forecaster, now time.Time) models.Leaderboard {
	outcomes := make(map[string]float64)
	for _, m := range markets {
		if m.IsResolved() {
			outcomes[m.ID] = m.Resolution.Outcome
		}
	}

	tallies := make(map[string]*tally)
	for _, p := range predictions {
		if p.IsAnonymous {
			continue
		}
		t, ok := tallies[p.ForecasterID]
		if !ok {
			t = &tally{}
			tallies[p.ForecasterID] = t
		}
		t.total++
		if outcome, resolved := outcomes[p.MarketID]; resolved {
			t.resolved++
			t.brier += Brier(p.Probability, outcome)
			t.accuracy += Accuracy(p.Probability, outcome)
		}
	}

	profiles := make(map[string]models.Forecaster, len(forecasters))
	for _, f := range forecasters {
		profiles[f.ID] = f
	}

	type ranked struct {
		entry     models.LeaderboardEntry
		createdAt time.Time
	}
	rows := make([]ranked, 0, len(tallies))
	for id, t := range tallies {
		if t.resolved == 0 {
			continue
		}
		profile, ok := profiles[id]
		name, createdAt := id, unknownCreatedAt
		if ok {
			name, createdAt = profile.DisplayName, profile.CreatedAt
		}
		rows = append(rows, ranked{
			entry: models.LeaderboardEntry{
				UserID:              id,
				DisplayName:         name,
				TotalPredictions:    t.total,
				ResolvedPredictions: t.resolved,
				AverageAccuracy:     t.accuracy / float64(t.resolved),
				BrierScore:          t.brier / float64(t.resolved),
			},
			createdAt: createdAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.entry.BrierScore != b.entry.BrierScore {
			return a.entry.BrierScore < b.entry.BrierScore
		}
		if a.entry.ResolvedPredictions != b.entry.ResolvedPredictions {
			return a.entry.ResolvedPredictions > b.entry.ResolvedPredictions
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.entry.UserID < b.entry.UserID
	})

	entries := make([]models.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
		entries[i].Rank = i + 1
	}

	return models.Leaderboard{
		Entries:       entries,
		ResolvedCount: len(outcomes),
		GeneratedAt:   now.UTC(),
	}
}
