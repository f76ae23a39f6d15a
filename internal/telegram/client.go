// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats consensus movement alerts and market resolutions (with the rebuilt
// leaderboard) into MarkdownV2 messages and handles delivery with retry logic.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/forecastodds/internal/alerts"
	"github.com/rewired-gh/forecastodds/internal/models"
)

// sender is the part of tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot             sender
	chatID          int64
	maxRetries      int
	retryDelayBase  time.Duration
	leaderboardSize int
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, leaderboardSize int) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase, leaderboardSize)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration, leaderboardSize int) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if leaderboardSize <= 0 {
		leaderboardSize = 10
	}

	return &Client{
		bot:             bot,
		chatID:          chatIDInt,
		maxRetries:      maxRetries,
		retryDelayBase:  retryDelayBase,
		leaderboardSize: leaderboardSize,
	}, nil
}

// NotifyMovement sends a consensus movement alert.
func (c *Client) NotifyMovement(ctx context.Context, alert alerts.Alert) error {
	return c.send(ctx, formatMovement(alert))
}

// NotifyResolution sends the outcome of a resolved market with the top of the leaderboard.
func (c *Client) NotifyResolution(ctx context.Context, market models.Market, board models.Leaderboard) error {
	return c.send(ctx, formatResolution(market, board, c.leaderboardSize))
}

// send delivers text with linear backoff between attempts.
func (c *Client) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("send cancelled after %d attempts: %w", i+1, ctx.Err())
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatMovement formats an alert into a Telegram message
func formatMovement(alert alerts.Alert) string {
	directionEmoji := "📈"
	if alert.Direction == "decrease" {
		directionEmoji = "📉"
	}

	var b strings.Builder
	b.WriteString("🚨 *Consensus Moved*\n\n")
	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(alert.Question))
	fmt.Fprintf(&b, "%s Change: *%s* \\(%s → %s\\)\n",
		directionEmoji,
		escapeMarkdownV2(fmt.Sprintf("%.1f pts", alert.Magnitude)),
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", alert.OldProbability)),
		escapeMarkdownV2(fmt.Sprintf("%.1f%%", alert.NewProbability)))
	fmt.Fprintf(&b, "👥 Forecasters: %d\n", alert.PredictionCount)
	fmt.Fprintf(&b, "📊 Surprise: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f nats", alert.Information)))
	fmt.Fprintf(&b, "📅 Detected: %s\n", escapeMarkdownV2(alert.DetectedAt.UTC().Format("2006-01-02 15:04:05")))
	return b.String()
}

// formatResolution formats a resolution and the top n leaderboard entries
func formatResolution(market models.Market, board models.Leaderboard, n int) string {
	var b strings.Builder
	b.WriteString("✅ *Market Resolved*\n\n")
	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(market.Question))
	if market.Resolution != nil {
		fmt.Fprintf(&b, "🎯 Outcome: *%s*\n", escapeMarkdownV2(fmt.Sprintf("%.0f%%", market.Resolution.Outcome)))
		if market.Resolution.Source != "" {
			fmt.Fprintf(&b, "🔗 Source: %s\n", escapeMarkdownV2(market.Resolution.Source))
		}
		fmt.Fprintf(&b, "⏱ Open for: %s\n", escapeMarkdownV2(formatDuration(market.Resolution.ResolvedAt.Sub(market.CreatedAt))))
	}

	if len(board.Entries) == 0 {
		return b.String()
	}

	b.WriteString("\n🏆 *Leaderboard*\n")
	for i, e := range board.Entries {
		if i == n {
			break
		}
		fmt.Fprintf(&b, "%d\\. %s Brier %s, accuracy %s \\(%d resolved\\)\n",
			e.Rank,
			escapeMarkdownV2(e.DisplayName),
			escapeMarkdownV2(fmt.Sprintf("%.4f", e.BrierScore)),
			escapeMarkdownV2(fmt.Sprintf("%.1f%%", e.AverageAccuracy*100)),
			e.ResolvedPredictions)
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! and the escape character itself
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '\\', '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if days := int(d.Hours() / 24); days >= 2 {
		return fmt.Sprintf("%dd", days)
	}
	if hours := int(d.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
