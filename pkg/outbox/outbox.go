// Package outbox hands work produced by actions (emails, tasks) to downstream systems
// through Redis lists.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message kinds.
const (
	KindSend   = "send"
	KindCancel = "cancel"
)

// Message is one unit of work placed on a queue.
type Message struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	ExecutionID string         `json:"execution_id,omitempty"`
	EntityRef   string         `json:"entity_ref,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Outbox is the producer side used by actions.
type Outbox interface {
	Enqueue(ctx context.Context, queue string, message Message) (string, error)
}

// RedisOutbox pushes messages onto <prefix>:outbox:<queue> lists. Consumers pop from the
// right, so messages are delivered in enqueue order.
type RedisOutbox struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisOutbox(client redis.UniversalClient) *RedisOutbox {
	return &RedisOutbox{
		client: client,
		prefix: "flowsaga",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (o *RedisOutbox) key(queue string) string {
	return o.prefix + ":outbox:" + queue
}

// Enqueue stores message and returns its id, generating one when absent.
func (o *RedisOutbox) Enqueue(ctx context.Context, queue string, message Message) (string, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = o.now()
	}

	data, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to marshal outbox message: %w", err)
	}

	if err := o.client.LPush(ctx, o.key(queue), data).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue on %s: %w", queue, err)
	}

	return message.ID, nil
}

// Pending lists the messages waiting on queue, oldest first.
func (o *RedisOutbox) Pending(ctx context.Context, queue string) ([]Message, error) {
	raw, err := o.client.LRange(ctx, o.key(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", queue, err)
	}

	messages := make([]Message, 0, len(raw))

	for i := len(raw) - 1; i >= 0; i-- {
		var message Message
		if err := json.Unmarshal([]byte(raw[i]), &message); err != nil {
			return nil, fmt.Errorf("failed to decode outbox message: %w", err)
		}

		messages = append(messages, message)
	}

	return messages, nil
}
