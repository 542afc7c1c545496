package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"notesync-be/pkg/events"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "notesync_events"

type redisEnvelope struct {
	Category string          `json:"category"`
	Event    json.RawMessage `json:"event"`
}

// RedisTransport uses a single pub/sub channel all processes subscribe to.
type RedisTransport struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
}

func NewRedisTransport(url string) (*RedisTransport, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: url}
	}
	return &RedisTransport{rdb: redis.NewClient(opt)}, nil
}

func (t *RedisTransport) Name() string {
	return "redis"
}

func (t *RedisTransport) Publish(ctx context.Context, event events.Event) error {
	body, err := event.Marshal()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(redisEnvelope{Category: event.Category, Event: body})
	if err != nil {
		return err
	}
	if err := t.rdb.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to redis: %w", err)
	}
	return nil
}

// Subscribe starts a goroutine that hands every channel message to handler
// until Close is called.
func (t *RedisTransport) Subscribe(ctx context.Context, handler Handler) error {
	t.pubsub = t.rdb.Subscribe(ctx, redisChannel)
	if _, err := t.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", redisChannel, err)
	}

	go func() {
		for msg := range t.pubsub.Channel() {
			var env redisEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[WARN] Redis msg parse error: %v", err)
				continue
			}
			event, err := events.Decode(env.Category, env.Event)
			if err != nil {
				log.Printf("[WARN] Redis event decode error: %v", err)
				continue
			}
			_ = handler(context.Background(), event)
		}
	}()
	return nil
}

func (t *RedisTransport) Close() error {
	if t.pubsub != nil {
		_ = t.pubsub.Close()
	}
	return t.rdb.Close()
}
