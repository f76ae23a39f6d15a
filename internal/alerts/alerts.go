// Package alerts decides which consensus movements are worth a notification.
//
// A market's consensus is compared against a per-market baseline: the
// probability at the last alert, or the value before the first observed
// change. A move of at least Threshold percentage points away from the
// baseline raises an alert. Within Cooldown of the previous alert a move in
// the same direction is suppressed unless it enters the deterministic zone
// (above 90% or below 10%) for the first time. Suppressed moves keep
// accumulating against the unchanged baseline.
package alerts

import (
	"math"
	"sync"
	"time"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// probEpsilon clamps probabilities away from 0 and 1 to prevent ln(0) in KL divergence.
const probEpsilon = 1e-7

// Alert is a significant consensus movement of one market.
type Alert struct {
	MarketID        string
	Question        string
	Direction       string
	OldProbability  float64 // percent
	NewProbability  float64 // percent
	Magnitude       float64 // percentage points
	PredictionCount int
	Information     float64 // KL divergence of the move in nats
	DetectedAt      time.Time
}

// notifiedRecord tracks the last alert of a market for cooldown deduplication.
type notifiedRecord struct {
	Direction string
	NewProb   float64
	SentAt    time.Time
}

// Detector tracks per-market baselines. It is safe for concurrent use.
type Detector struct {
	threshold float64
	cooldown  time.Duration

	mu        sync.Mutex
	baselines map[string]float64
	notified  map[string]notifiedRecord
}

// NewDetector creates a Detector raising alerts for moves of at least
// threshold percentage points.
func NewDetector(threshold float64, cooldown time.Duration) *Detector {
	return &Detector{
		threshold: threshold,
		cooldown:  cooldown,
		baselines: make(map[string]float64),
		notified:  make(map[string]notifiedRecord),
	}
}

// Observe feeds a change event to the detector and reports whether it raises
// an alert. Resolution events and events without data never alert. A raised
// alert counts as notified from event.Timestamp on.
func (d *Detector) Observe(question string, event models.ChangeEvent) (Alert, bool) {
	if event.Probability == nil || event.TriggerType == models.TriggerResolution {
		return Alert{}, false
	}
	current := *event.Probability

	d.mu.Lock()
	defer d.mu.Unlock()

	baseline, ok := d.baselines[event.MarketID]
	if !ok {
		baseline = current - event.Change
		d.baselines[event.MarketID] = baseline
	}

	move := current - baseline
	if math.Abs(move) < d.threshold {
		return Alert{}, false
	}
	direction := "increase"
	if move < 0 {
		direction = "decrease"
	}

	if rec, exists := d.notified[event.MarketID]; exists && event.Timestamp.Sub(rec.SentAt) < d.cooldown {
		enteringDetZone := isDeterministicZone(current) && !isDeterministicZone(rec.NewProb)
		if rec.Direction == direction && !enteringDetZone {
			return Alert{}, false
		}
	}

	d.baselines[event.MarketID] = current
	d.notified[event.MarketID] = notifiedRecord{
		Direction: direction,
		NewProb:   current,
		SentAt:    event.Timestamp,
	}

	return Alert{
		MarketID:        event.MarketID,
		Question:        question,
		Direction:       direction,
		OldProbability:  baseline,
		NewProbability:  current,
		Magnitude:       math.Abs(move),
		PredictionCount: event.PredictionCount,
		Information:     KLDivergence(baseline/100, current/100),
		DetectedAt:      event.Timestamp,
	}, true
}

// Forget drops the state of a market, e.g. once it is resolved.
func (d *Detector) Forget(marketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.baselines, marketID)
	delete(d.notified, marketID)
}

// KLDivergence computes KL(pNew || pOld) for a binary (YES/NO) distribution.
// Both probabilities are fractions clamped to [1e-7, 1-1e-7] to avoid ln(0).
func KLDivergence(pOld, pNew float64) float64 {
	pOld = math.Max(probEpsilon, math.Min(1-probEpsilon, pOld))
	pNew = math.Max(probEpsilon, math.Min(1-probEpsilon, pNew))
	return pNew*math.Log(pNew/pOld) + (1-pNew)*math.Log((1-pNew)/(1-pOld))
}

// isDeterministicZone returns true when a probability (percent) is in the
// high-conviction region (>90% or <10%).
func isDeterministicZone(p float64) bool {
	return p > 90 || p < 10
}
