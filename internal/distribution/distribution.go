// Package distribution tallies a market's active predictions by confidence
// level and by probability range.
package distribution

import (
	"fmt"

	"github.com/rewired-gh/forecastodds/internal/models"
)

// Entry is the part of a prediction the bucketer looks at.
type Entry struct {
	Probability float64
	Confidence  models.Confidence
}

// Result is the combined output of Bucket.
type Result struct {
	Confidence   models.ConfidenceCounts `json:"confidence"`
	Distribution models.Distribution     `json:"distribution"`
}

// Bucket counts entries per confidence level and per histogram bin.
// Bins are [0,25), [25,50), [50,75) and [75,100]; 100 falls in the last bin.
// An unknown confidence or an out-of-range probability is a contract violation
// and fails the whole call.
func Bucket(entries []Entry) (Result, error) {
	var r Result
	for i, e := range entries {
		if err := addConfidence(&r.Confidence, e.Confidence); err != nil {
			return Result{}, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := addProbability(&r.Distribution, e.Probability); err != nil {
			return Result{}, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return r, nil
}

// FromPredictions is Bucket over a prediction slice.
func FromPredictions(predictions []models.Prediction) (Result, error) {
	entries := make([]Entry, len(predictions))
	for i, p := range predictions {
		entries[i] = Entry{Probability: p.Probability, Confidence: p.Confidence}
	}
	return Bucket(entries)
}

func addConfidence(c *models.ConfidenceCounts, level models.Confidence) error {
	switch level {
	case models.ConfidenceHigh:
		c.High++
	case models.ConfidenceMedium:
		c.Medium++
	case models.ConfidenceLow:
		c.Low++
	default:
		return fmt.Errorf("%w: unknown confidence %q", models.ErrValidation, level)
	}
	return nil
}

func addProbability(d *models.Distribution, p float64) error {
	if err := models.ValidateProbability(p); err != nil {
		return err
	}
	switch {
	case p < 25:
		d.Range0To25++
	case p < 50:
		d.Range25To50++
	case p < 75:
		d.Range50To75++
	default:
		d.Range75To100++
	}
	return nil
}
