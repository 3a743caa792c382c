package events

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
)

// kafkaPublisher writes every subject to the topic of the same name.
type kafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(addrs, clientID string) (Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  addrs,
		"client.id":          clientID,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	go func() {
		for e := range producer.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				zap.L().Warn("kafka delivery failed",
					zap.String("topic", *m.TopicPartition.Topic),
					zap.Error(m.TopicPartition.Error),
				)
			}
		}
	}()

	return &kafkaPublisher{producer: producer}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	topic := event.Subject
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Key),
		Value:          data,
	}, nil)
}

func (p *kafkaPublisher) Close() error {
	p.producer.Flush(5000)
	p.producer.Close()
	return nil
}
