package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/forecastodds/internal/alerts"
	"github.com/rewired-gh/forecastodds/internal/models"
)

type fakeBot struct {
	failures int
	calls    int
	last     tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.last = msg
	}
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	return tgbotapi.Message{}, nil
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h"},
		{2 * time.Hour, "2h"},
		{30 * time.Minute, "30m"},
		{1 * time.Minute, "1m"},
		{36 * time.Hour, "36h"},
		{72 * time.Hour, "3d"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", tt.duration, result, tt.expected)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"50.5%", "50\\.5%"},
		{"Will (A) win?", "Will \\(A\\) win?"},
		{"a_b*c", "a\\_b\\*c"},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMovement(t *testing.T) {
	msg := formatMovement(alerts.Alert{
		Question:        "Will it rain on May 5?",
		Direction:       "decrease",
		OldProbability:  62,
		NewProbability:  48.5,
		Magnitude:       13.5,
		PredictionCount: 7,
		Information:     0.0367,
		DetectedAt:      time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{"📉", "13\\.5 pts", "62\\.0%", "48\\.5%", "Forecasters: 7", "0\\.037 nats", "2026\\-05\\-04"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatResolution(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	market := models.Market{
		Question:  "Q1 GDP above 2%?",
		CreatedAt: created,
		Status:    models.StatusResolved,
		Resolution: &models.Resolution{
			Outcome:    100,
			Source:     "bea.gov",
			ResolvedAt: created.Add(96 * time.Hour),
		},
	}
	board := models.Leaderboard{Entries: []models.LeaderboardEntry{
		{Rank: 1, DisplayName: "Ada", BrierScore: 0.04, AverageAccuracy: 0.8, ResolvedPredictions: 1},
		{Rank: 2, DisplayName: "Bob", BrierScore: 0.36, AverageAccuracy: 0.4, ResolvedPredictions: 1},
	}}

	msg := formatResolution(market, board, 1)
	for _, want := range []string{"Market Resolved", "100%", "bea\\.gov", "4d", "Ada", "0\\.0400", "80\\.0%"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Bob") {
		t.Error("leaderboard not truncated to size 1")
	}
}

func TestSendRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	c, err := newClient(bot, "12345", 3, time.Millisecond, 5)
	if err != nil {
		t.Fatalf("newClient() error = %v", err)
	}

	if err := c.NotifyMovement(context.Background(), alerts.Alert{Question: "Q"}); err != nil {
		t.Fatalf("NotifyMovement() error = %v", err)
	}
	if bot.calls != 3 {
		t.Errorf("Send called %d times, want 3", bot.calls)
	}
	if bot.last.ChatID != 12345 || bot.last.ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("message config = %+v", bot.last)
	}
}

func TestSendGivesUp(t *testing.T) {
	bot := &fakeBot{failures: 10}
	c, err := newClient(bot, "1", 2, time.Millisecond, 5)
	if err != nil {
		t.Fatalf("newClient() error = %v", err)
	}
	if err := c.NotifyMovement(context.Background(), alerts.Alert{}); err == nil {
		t.Fatal("NotifyMovement() succeeded despite failures")
	}
	if bot.calls != 2 {
		t.Errorf("Send called %d times, want 2", bot.calls)
	}
}

func TestNewClientInvalidChatID(t *testing.T) {
	if _, err := newClient(&fakeBot{}, "not-a-number", 1, time.Second, 1); err == nil {
		t.Error("newClient() accepted a non-numeric chat ID")
	}
}
