package distribution

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/rewired-gh/forecastodds/internal/models"
)

func TestBucket_Boundaries(t *testing.T) {
	tests := []struct {
		probability float64
		want        models.Distribution
	}{
		{0, models.Distribution{Range0To25: 1}},
		{24.999, models.Distribution{Range0To25: 1}},
		{25, models.Distribution{Range25To50: 1}},
		{50, models.Distribution{Range50To75: 1}},
		{75, models.Distribution{Range75To100: 1}},
		{100, models.Distribution{Range75To100: 1}},
	}

	for _, tt := range tests {
		r, err := Bucket([]Entry{{Probability: tt.probability, Confidence: models.ConfidenceLow}})
		if err != nil {
			t.Fatalf("Bucket(%v) failed: %v", tt.probability, err)
		}
		if r.Distribution != tt.want {
			t.Errorf("Bucket(%v) = %+v, want %+v", tt.probability, r.Distribution, tt.want)
		}
	}
}

func TestBucket_SumsMatchCount(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	levels := []models.Confidence{models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh}

	for n := 0; n < 50; n++ {
		entries := make([]Entry, n)
		for i := range entries {
			entries[i] = Entry{
				Probability: float64(rng.Intn(101)),
				Confidence:  levels[rng.Intn(len(levels))],
			}
		}
		r, err := Bucket(entries)
		if err != nil {
			t.Fatalf("Bucket failed: %v", err)
		}
		if r.Distribution.Total() != n {
			t.Errorf("n=%d: histogram total = %d", n, r.Distribution.Total())
		}
		if r.Confidence.Total() != n {
			t.Errorf("n=%d: confidence total = %d", n, r.Confidence.Total())
		}
	}
}

func TestBucket_ConfidenceCounts(t *testing.T) {
	r, err := Bucket([]Entry{
		{Probability: 40, Confidence: models.ConfidenceMedium},
		{Probability: 60, Confidence: models.ConfidenceMedium},
		{Probability: 90, Confidence: models.ConfidenceHigh},
	})
	if err != nil {
		t.Fatalf("Bucket failed: %v", err)
	}
	want := models.ConfidenceCounts{High: 1, Medium: 2, Low: 0}
	if r.Confidence != want {
		t.Errorf("confidence = %+v, want %+v", r.Confidence, want)
	}
}

func TestBucket_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown confidence", Entry{Probability: 50, Confidence: "certain"}},
		{"missing confidence", Entry{Probability: 50}},
		{"probability above range", Entry{Probability: 100.5, Confidence: models.ConfidenceLow}},
		{"negative probability", Entry{Probability: -1, Confidence: models.ConfidenceLow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bucket([]Entry{{Probability: 10, Confidence: models.ConfidenceHigh}, tt.entry})
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}
