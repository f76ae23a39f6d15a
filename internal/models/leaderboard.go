package models

import "time"

// LeaderboardEntry is one forecaster's row in the published ranking.
type LeaderboardEntry struct {
	UserID              string  `json:"user_id"`
	DisplayName         string  `json:"display_name"`
	TotalPredictions    int     `json:"total_predictions"`
	ResolvedPredictions int     `json:"resolved_predictions"`
	AverageAccuracy     float64 `json:"average_accuracy"`
	BrierScore          float64 `json:"brier_score"`
	Rank                int     `json:"rank"`
}

// Leaderboard is an immutable, fully rebuilt ranking.
type Leaderboard struct {
	Entries       []LeaderboardEntry `json:"entries"`
	ResolvedCount int                `json:"resolved_markets"`
	GeneratedAt   time.Time          `json:"generated_at"`
}
