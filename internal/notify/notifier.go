package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Envelope is the wire shape delivered on tenant channels.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Publisher fans events out over Redis pub/sub, one channel per tenant so
// consumers observe that tenant's events in publish order.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPublisher instantiates the Redis publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger}
}

// ChannelFor returns the pub/sub channel name for a tenant.
func ChannelFor(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:events", tenantID)
}

// Publish serialises the payload and emits it on the tenant channel.
func (p *Publisher) Publish(ctx context.Context, tenantID uuid.UUID, event string, payload any) error {
	if p == nil || p.client == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	env := Envelope{Event: event, Payload: raw, At: time.Now().UTC()}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}
	return p.client.Publish(ctx, ChannelFor(tenantID), body).Err()
}

// Subscribe listens on a tenant channel and decodes envelopes until the
// context is cancelled. Malformed messages are logged and dropped.
func (p *Publisher) Subscribe(ctx context.Context, tenantID uuid.UUID) (<-chan Envelope, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("notify: redis client not configured")
	}
	pubsub := p.client.Subscribe(ctx, ChannelFor(tenantID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	out := make(chan Envelope)
	go func() {
		defer func() { _ = pubsub.Close() }()
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					p.logger.Warn("notify: drop malformed message", slog.Any("error", err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
