package kafka_client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockscore/types"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Options configures the score event producer.
type Options struct {
	BootstrapServers  string
	Topic             string
	Partitions        int
	ReplicationFactor int
}

// Producer publishes score events to a Kafka topic.
type Producer struct {
	producer *kafka.Producer
	topic    string
}

// NewProducer connects to the cluster and makes sure the topic exists.
func NewProducer(opts Options) (*Producer, error) {
	zap.L().Info("Connecting to Kafka", zap.String("bootstrapServers", opts.BootstrapServers))

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": opts.BootstrapServers,
		"client.id":         "stockscore",
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	// Delivery report handler for produced messages
	go func() {
		for e := range producer.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					zap.L().Error("Kafka delivery failed", zap.Error(ev.TopicPartition.Error))
				} else {
					zap.L().Debug("Delivered score event", zap.String("topic", *ev.TopicPartition.Topic))
				}
			}
		}
	}()

	if err := createTopic(producer, opts); err != nil {
		// the topic may already exist or be managed elsewhere
		zap.L().Warn("Failed to create topic", zap.String("topic", opts.Topic), zap.Error(err))
	}

	return &Producer{producer: producer, topic: opts.Topic}, nil
}

func createTopic(producer *kafka.Producer, opts Options) error {
	admin, err := kafka.NewAdminClientFromProducer(producer)
	if err != nil {
		return err
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx,
		[]kafka.TopicSpecification{{
			Topic:             opts.Topic,
			NumPartitions:     opts.Partitions,
			ReplicationFactor: opts.ReplicationFactor,
		}},
		kafka.SetAdminOperationTimeout(60*time.Second))
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return r.Error
		}
	}
	zap.L().Info("Kafka topic ready", zap.String("topic", opts.Topic))
	return nil
}

// newMessage encodes event for topic, keyed by symbol so one ticker's events
// stay ordered within a partition.
func newMessage(topic string, event types.ScoreEvent) (*kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode score event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Symbol),
		Value:          value,
		Headers:        []kafka.Header{{Key: "event-type", Value: []byte(event.Type)}},
	}, nil
}

// Publish queues event for delivery.
func (p *Producer) Publish(event types.ScoreEvent) error {
	message, err := newMessage(p.topic, event)
	if err != nil {
		return err
	}
	if err := p.producer.Produce(message, nil); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// Close flushes outstanding messages and releases the producer.
func (p *Producer) Close() {
	if remaining := p.producer.Flush(5000); remaining > 0 {
		zap.L().Warn("Kafka messages not delivered before close", zap.Int("remaining", remaining))
	}
	p.producer.Close()
}
