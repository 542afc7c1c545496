package relay

import (
	"context"

	"notesync-be/pkg/events"
	"notesync-be/pkg/nats"
)

// NatsTransport publishes to JetStream and consumes with a durable named
// after the process instance.
type NatsTransport struct {
	url        string
	instanceID string
	publisher  *nats.Publisher
	subscriber *nats.Subscriber
}

func NewNatsTransport(url, instanceID string) (*NatsTransport, error) {
	pub, err := nats.NewPublisher(url)
	if err != nil {
		return nil, err
	}
	return &NatsTransport{url: url, instanceID: instanceID, publisher: pub}, nil
}

func (t *NatsTransport) Name() string {
	return "nats"
}

func (t *NatsTransport) Publish(ctx context.Context, event events.Event) error {
	return t.publisher.Publish(ctx, event)
}

func (t *NatsTransport) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := nats.NewSubscriber(t.url)
	if err != nil {
		return err
	}
	if err := sub.Subscribe(ctx, "notesync-"+t.instanceID, nats.EventHandler(handler)); err != nil {
		sub.Close()
		return err
	}
	t.subscriber = sub
	return nil
}

func (t *NatsTransport) Close() error {
	if t.subscriber != nil {
		t.subscriber.Close()
	}
	t.publisher.Close()
	return nil
}
