// Package publisher fans committed change events out to Redis Streams so
// downstream consumers can follow a market's consensus without polling.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rewired-gh/forecastodds/internal/models"
)

// StreamPublisher publishes change events to Redis Streams
type StreamPublisher struct {
	redis  *redis.Client
	maxLen int64
}

// NewStreamPublisher creates a new stream publisher. Streams are trimmed to
// roughly maxLen entries; maxLen <= 0 disables trimming.
func NewStreamPublisher(redisClient *redis.Client, maxLen int64) *StreamPublisher {
	return &StreamPublisher{
		redis:  redisClient,
		maxLen: maxLen,
	}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// StreamKey returns the stream a market's change events go to.
// Stream key format: odds.changes.{market_id}
func StreamKey(marketID string) string {
	return fmt.Sprintf("odds.changes.%s", marketID)
}

// Publish appends a change event to its market's stream.
func (p *StreamPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	values, err := encode(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: StreamKey(event.MarketID),
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.redis.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("error publishing to stream %s: %w", args.Stream, err)
	}
	return nil
}

// encode builds the stream entry fields: sequence, trigger and the JSON event.
func encode(event models.ChangeEvent) (map[string]interface{}, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("error marshaling change event: %w", err)
	}
	return map[string]interface{}{
		"sequence": event.Sequence,
		"trigger":  string(event.TriggerType),
		"data":     string(data),
	}, nil
}
