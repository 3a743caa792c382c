package events

import (
	"context"
	"fmt"

	"flyerportal/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events", fx.Provide(ProvidePublisher))

type closer interface {
	Close() error
}

// ProvidePublisher selects the event backend from EVENTS.DRIVER (nats, kafka or noop).
func ProvidePublisher(lc fx.Lifecycle, cfg *config.Config) (Publisher, error) {
	var (
		pub Publisher
		err error
	)

	switch cfg.Events.Driver {
	case "nats":
		pub, err = NewNatsPublisher(cfg.Events.NatsURL, cfg.AppName)
	case "kafka":
		pub, err = NewKafkaPublisher(cfg.Events.KafkaAddrs, cfg.AppName)
	case "", "noop":
		pub = NewNoop()
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Events] publisher ready", zap.String("driver", cfg.Events.Driver))

	if c, ok := pub.(closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return c.Close()
			},
		})
	}

	return pub, nil
}
