// Package relay moves mutation events between backend processes. Every
// published event eventually reaches the local fan-out of every process.
package relay

import (
	"context"
	"fmt"
	"time"

	"notesync-be/pkg/events"
)

// Handler receives events relayed back to this process.
type Handler func(ctx context.Context, event events.Event) error

type Transport interface {
	Name() string
	Publish(ctx context.Context, event events.Event) error
	Close() error
}

// Subscriber is implemented by transports that push events back over their
// own channel. The http transport instead relies on the relay calling
// POST /broadcast-event on each process.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

type Config struct {
	Transport  string
	BaseURL    string
	Resource   string
	Timeout    time.Duration
	NatsURL    string
	RedisURL   string
	InstanceID string
}

func New(cfg Config) (Transport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	switch cfg.Transport {
	case "http", "":
		return NewHTTPTransport(cfg.BaseURL, cfg.Resource, cfg.Timeout), nil
	case "nats":
		return NewNatsTransport(cfg.NatsURL, cfg.InstanceID)
	case "redis":
		return NewRedisTransport(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown relay transport %q", cfg.Transport)
	}
}
