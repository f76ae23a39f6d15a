package odds

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

const tolerance = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

// naiveMedian is the reference definition: sort, then pick or average the middle.
func naiveMedian(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[(n-1)/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func TestCalculate_Empty(t *testing.T) {
	s := Calculate(nil)
	if s.HasData() {
		t.Fatal("expected no data for empty set")
	}
	if s.Statistics.Median != nil || s.Statistics.Mean != nil || s.Statistics.StdDeviation != nil {
		t.Errorf("expected nil statistics, got %+v", s.Statistics)
	}
	if s.Odds.Probability != nil || s.Odds.Decimal != nil || s.Odds.Fractional != nil || s.Odds.ImpliedProbability != nil {
		t.Errorf("expected nil odds, got %+v", s.Odds)
	}
}

func TestMedian_MatchesReference(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"single", []float64{42}},
		{"two", []float64{40, 60}},
		{"three", []float64{70, 40, 60}},
		{"four", []float64{10, 90, 30, 50}},
		{"five with duplicates", []float64{50, 50, 10, 100, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Median(tt.values)
			want := naiveMedian(tt.values)
			if !approxEqual(got, want) {
				t.Errorf("Median(%v) = %v, want %v", tt.values, got, want)
			}
		})
	}

	rng := rand.New(rand.NewSource(7))
	for n := 1; n <= 25; n++ {
		values := make([]float64, n)
		for i := range values {
			values[i] = rng.Float64() * 100
		}
		if got, want := Median(values), naiveMedian(values); !approxEqual(got, want) {
			t.Errorf("n=%d: Median = %v, want %v", n, got, want)
		}
	}
}

func TestMedian_DoesNotReorderInput(t *testing.T) {
	values := []float64{70, 40, 60}
	Median(values)
	if values[0] != 70 || values[1] != 40 || values[2] != 60 {
		t.Errorf("input was modified: %v", values)
	}
}

func TestStdDeviation(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{[]float64{55}, 0},
		{[]float64{40, 60}, 10},
		{[]float64{2, 4, 4, 4, 5, 5, 7, 9}, 2},
	}
	for _, tt := range tests {
		if got := StdDeviation(tt.values); !approxEqual(got, tt.want) {
			t.Errorf("StdDeviation(%v) = %v, want %v", tt.values, got, tt.want)
		}
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	for i := 1; i <= 1000; i++ {
		p := float64(i) / 1000
		decimal, err := ProbabilityToDecimal(p)
		if err != nil {
			t.Fatalf("ProbabilityToDecimal(%v) failed: %v", p, err)
		}
		implied, err := DecimalToImpliedProbability(decimal)
		if err != nil {
			t.Fatalf("DecimalToImpliedProbability(%v) failed: %v", decimal, err)
		}
		if !approxEqual(implied, p) {
			t.Errorf("round trip of %v gave %v", p, implied)
		}
	}
}

func TestProbabilityToDecimal_Invalid(t *testing.T) {
	for _, p := range []float64{0, -0.1, 1.01, math.NaN()} {
		if _, err := ProbabilityToDecimal(p); err == nil {
			t.Errorf("ProbabilityToDecimal(%v) expected error", p)
		}
	}
}

func TestDecimalToFractional(t *testing.T) {
	tests := []struct {
		decimal float64
		want    string
	}{
		{2.5, "3/2"},
		{2.0, "1/1"},
		{1.25, "1/4"},
		{1.0, "0/1"},
		{3.0, "2/1"},
		{11.0, "10/1"},
		{1.0 / 0.5667, "13/17"},
	}
	for _, tt := range tests {
		got, err := DecimalToFractional(tt.decimal)
		if err != nil {
			t.Fatalf("DecimalToFractional(%v) failed: %v", tt.decimal, err)
		}
		if got != tt.want {
			t.Errorf("DecimalToFractional(%v) = %s, want %s", tt.decimal, got, tt.want)
		}
	}

	if _, err := DecimalToFractional(0.5); err == nil {
		t.Error("expected error for decimal odds below 1")
	}
}

func TestCalculate_ConsensusScenario(t *testing.T) {
	s := Calculate([]float64{40, 60})

	if s.PredictionCount != 2 {
		t.Fatalf("PredictionCount = %d, want 2", s.PredictionCount)
	}
	if !approxEqual(*s.Statistics.Median, 50) {
		t.Errorf("median = %v, want 50", *s.Statistics.Median)
	}
	if !approxEqual(*s.Statistics.Mean, 50) {
		t.Errorf("mean = %v, want 50", *s.Statistics.Mean)
	}
	if !approxEqual(*s.Statistics.StdDeviation, 10) {
		t.Errorf("stdDeviation = %v, want 10", *s.Statistics.StdDeviation)
	}
	if !approxEqual(*s.Odds.Probability, 50) {
		t.Errorf("probability = %v, want 50", *s.Odds.Probability)
	}
	if !approxEqual(*s.Odds.Decimal, 2.0) {
		t.Errorf("decimal = %v, want 2.0", *s.Odds.Decimal)
	}
	if *s.Odds.Fractional != "1/1" {
		t.Errorf("fractional = %s, want 1/1", *s.Odds.Fractional)
	}
	if !approxEqual(*s.Odds.ImpliedProbability, 50) {
		t.Errorf("impliedProbability = %v, want 50", *s.Odds.ImpliedProbability)
	}

	s = Calculate([]float64{40, 60, 70})
	if !approxEqual(*s.Statistics.Median, 60) {
		t.Errorf("median = %v, want 60", *s.Statistics.Median)
	}
	if math.Abs(*s.Statistics.Mean-56.6667) > 1e-3 {
		t.Errorf("mean = %v, want ~56.67", *s.Statistics.Mean)
	}
}

func TestCalculate_ZeroConsensus(t *testing.T) {
	s := Calculate([]float64{0, 0})
	if !s.HasData() {
		t.Fatal("expected data")
	}
	if s.Odds.Probability == nil || *s.Odds.Probability != 0 {
		t.Errorf("probability = %v, want 0", s.Odds.Probability)
	}
	if s.Odds.Decimal != nil || s.Odds.Fractional != nil || s.Odds.ImpliedProbability != nil {
		t.Errorf("expected nil derived odds at p=0, got %+v", s.Odds)
	}
}
