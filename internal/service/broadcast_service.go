package service

import (
	"context"
	"encoding/json"

	"notesync-be/internal/metrics"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/worker"
	"notesync-be/pkg/events"
	"notesync-be/pkg/relay"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const BroadcastTopic = "record_events"

// IBroadcastService hands mutation events to the relay. Publishing never
// fails the caller; delivery problems are logged and counted.
type IBroadcastService interface {
	Publish(ctx context.Context, event events.Event)
	// Consume starts forwarding published events to the relay transport.
	Consume(ctx context.Context) error
}

type broadcastEnvelope struct {
	Category string                 `json:"category"`
	Payload  map[string]interface{} `json:"payload"`
}

type broadcastService struct {
	pubSub    *gochannel.GoChannel
	transport relay.Transport
	pool      *worker.Pool
	logger    logger.ILogger
	metrics   *metrics.Metrics
}

func NewBroadcastService(
	pubSub *gochannel.GoChannel,
	transport relay.Transport,
	pool *worker.Pool,
	log logger.ILogger,
	m *metrics.Metrics,
) IBroadcastService {
	return &broadcastService{
		pubSub:    pubSub,
		transport: transport,
		pool:      pool,
		logger:    log,
		metrics:   m,
	}
}

func (s *broadcastService) Publish(ctx context.Context, event events.Event) {
	body, err := json.Marshal(broadcastEnvelope{Category: event.Category, Payload: event.Payload()})
	if err != nil {
		s.fail(event, "Failed to encode event", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if err := s.pubSub.Publish(BroadcastTopic, msg); err != nil {
		s.fail(event, "Failed to publish event to bus", err)
	}
}

func (s *broadcastService) Consume(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, BroadcastTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.forward(ctx, msg)
		}
	}()
	return nil
}

func (s *broadcastService) forward(ctx context.Context, msg *message.Message) {
	// Acked up front: relay delivery is best-effort and never redelivered.
	msg.Ack()

	var env broadcastEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		s.logger.Error("Relay", "Dropping undecodable bus message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		return
	}
	event, err := events.FromPayload(env.Category, env.Payload)
	if err != nil {
		s.logger.Error("Relay", "Dropping malformed event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		return
	}

	err = s.pool.Submit("relay_forward", func(taskCtx context.Context) {
		if err := s.transport.Publish(taskCtx, event); err != nil {
			s.fail(event, "Relay publish failed", err)
			return
		}
		s.logger.Debug("Relay", "Event forwarded", map[string]interface{}{
			"event":     event.Name,
			"tenant":    event.Tenant,
			"transport": s.transport.Name(),
		})
	})
	if err != nil {
		s.fail(event, "Relay forward not scheduled", err)
	}
}

func (s *broadcastService) fail(event events.Event, message string, err error) {
	s.metrics.BroadcastFailures.WithLabelValues(s.transport.Name()).Inc()
	s.logger.Warn("Relay", message, map[string]interface{}{
		"event":  event.Name,
		"tenant": event.Tenant,
		"error":  err.Error(),
	})
}
