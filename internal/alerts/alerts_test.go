package alerts

import (
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/forecastodds/internal/models"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func event(marketID string, at time.Time, prob, change float64) models.ChangeEvent {
	return models.ChangeEvent{
		ID:              "c",
		MarketID:        marketID,
		Timestamp:       at,
		TriggerType:     models.TriggerUpdatedPrediction,
		PredictionCount: 3,
		Probability:     &prob,
		Change:          change,
	}
}

func TestObserve_ThresholdAccumulates(t *testing.T) {
	d := NewDetector(10, time.Hour)

	if _, ok := d.Observe("Q", event("m1", t0, 50, 0)); ok {
		t.Fatal("first observation without movement alerted")
	}
	if _, ok := d.Observe("Q", event("m1", t0.Add(time.Minute), 56, 6)); ok {
		t.Fatal("6 point move alerted with 10 point threshold")
	}
	alert, ok := d.Observe("Q", event("m1", t0.Add(2*time.Minute), 61, 5))
	if !ok {
		t.Fatal("accumulated 11 point move did not alert")
	}
	if alert.OldProbability != 50 || alert.NewProbability != 61 || alert.Direction != "increase" {
		t.Errorf("alert = %+v", alert)
	}
	if math.Abs(alert.Magnitude-11) > 1e-9 {
		t.Errorf("Magnitude = %v, want 11", alert.Magnitude)
	}
	if alert.Information <= 0 {
		t.Errorf("Information = %v, want > 0", alert.Information)
	}
}

func TestObserve_SeedsBaselineFromChange(t *testing.T) {
	d := NewDetector(10, time.Hour)

	alert, ok := d.Observe("Q", event("m1", t0, 70, 20))
	if !ok {
		t.Fatal("20 point jump on first observation did not alert")
	}
	if alert.OldProbability != 50 {
		t.Errorf("OldProbability = %v, want 50", alert.OldProbability)
	}
}

func TestObserve_Cooldown(t *testing.T) {
	tests := []struct {
		name   string
		after  time.Duration
		prob   float64
		wantOK bool
	}{
		{"same direction within cooldown", 10 * time.Minute, 75, false},
		{"reversal within cooldown", 10 * time.Minute, 45, true},
		{"entering deterministic zone", 10 * time.Minute, 92, true},
		{"same direction after cooldown", 2 * time.Hour, 75, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(10, time.Hour)
			d.Observe("Q", event("m1", t0, 50, 0))
			if _, ok := d.Observe("Q", event("m1", t0.Add(time.Minute), 62, 12)); !ok {
				t.Fatal("initial move did not alert")
			}
			_, ok := d.Observe("Q", event("m1", t0.Add(tt.after), tt.prob, tt.prob-62))
			if ok != tt.wantOK {
				t.Errorf("Observe() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestObserve_IgnoresResolutionAndNoData(t *testing.T) {
	d := NewDetector(1, time.Hour)

	res := event("m1", t0, 90, 40)
	res.TriggerType = models.TriggerResolution
	if _, ok := d.Observe("Q", res); ok {
		t.Error("resolution event alerted")
	}

	empty := models.ChangeEvent{MarketID: "m1", Timestamp: t0, TriggerType: models.TriggerNewPrediction}
	if _, ok := d.Observe("Q", empty); ok {
		t.Error("event without probability alerted")
	}
}

func TestForget(t *testing.T) {
	d := NewDetector(10, time.Hour)
	d.Observe("Q", event("m1", t0, 50, 0))
	d.Forget("m1")

	// The baseline is re-seeded from the event itself.
	if _, ok := d.Observe("Q", event("m1", t0.Add(time.Minute), 80, 0)); ok {
		t.Error("forgotten market alerted against its old baseline")
	}
}

func TestKLDivergence(t *testing.T) {
	if kl := KLDivergence(0.5, 0.5); kl != 0 {
		t.Errorf("KLDivergence(0.5, 0.5) = %v, want 0", kl)
	}
	if KLDivergence(0.5, 0.9) <= KLDivergence(0.5, 0.6) {
		t.Error("larger move should carry more information")
	}
	if kl := KLDivergence(0, 1); math.IsInf(kl, 0) || math.IsNaN(kl) {
		t.Errorf("KLDivergence(0, 1) = %v, want finite", kl)
	}
}
