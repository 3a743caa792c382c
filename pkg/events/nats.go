package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

type natsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(url, name string) (Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &natsPublisher{conn: conn}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	return p.conn.Publish(event.Subject, data)
}

func (p *natsPublisher) Close() error {
	return p.conn.Drain()
}
