package events

//go:generate mockgen -source=publisher.go -destination=mock/publisher.go -package=mock

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	SubjectWalletTransactionCompleted = "wallet.transaction.completed"
	SubjectLotteryClaimed             = "lottery.claimed"
	SubjectFlyerCreated               = "flyer.created"
)

// Event is a domain fact published after its transaction committed.
type Event struct {
	Subject    string    `json:"subject"`
	Key        string    `json:"key"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type noopPublisher struct{}

// NewNoop returns a Publisher that drops every event.
func NewNoop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

// PublishQuietly publishes and only logs failures; events are notifications and
// never undo the committed state they describe.
func PublishQuietly(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := p.Publish(ctx, event); err != nil {
		zap.L().Warn("failed to publish event",
			zap.String("subject", event.Subject),
			zap.String("key", event.Key),
			zap.Error(err),
		)
	}
}
