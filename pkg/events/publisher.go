// Package events publishes domain events for the realtime dashboard relay.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event names.
const (
	ThreatRecorded = "threat.recorded"
	ThreatUpdated  = "threat.updated"
	ActionCreated  = "action.created"
	DocumentReady  = "document.processed"
)

// Envelope is the JSON payload written to the channel.
type Envelope struct {
	Event      string    `json:"event"`
	Data       any       `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher broadcasts events. Publishing is best-effort: callers log errors and carry on.
type Publisher interface {
	Publish(ctx context.Context, event string, data any) error
}

// RedisPublisher publishes envelopes on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher creates a RedisPublisher on channel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.Named("events"),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event string, data any) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data, OccurredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event, err)
	}

	p.logger.Debug("Event published",
		zap.String("event", event),
		zap.String("channel", p.channel),
		zap.Int64("receivers", receivers))
	return nil
}

// Nop discards events. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = Nop{}
)
