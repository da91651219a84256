package rabbitmq_client

import (
	"encoding/json"
	"fmt"
	"sync"

	"stockscore/types"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Options configures the connection and the queue score events go to.
type Options struct {
	Server string
	Port   string
	User   string
	Pass   string
	Queue  string
}

// URL is the AMQP dial address for these options.
func (o Options) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", o.User, o.Pass, o.Server, o.Port)
}

// Publisher sends score events to a durable queue.
type Publisher struct {
	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      amqp.Queue
}

func NewPublisher(opts Options) (*Publisher, error) {
	zap.L().Info("Connecting to RabbitMQ", zap.String("server", opts.Server), zap.String("port", opts.Port))

	conn, err := amqp.Dial(opts.URL())
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		opts.Queue, // Name of the queue
		true,       // Durable
		false,      // Delete when unused
		false,      // Exclusive
		false,      // No-wait
		nil,        // Arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	zap.L().Info("Connected to RabbitMQ.", zap.String("queue", q.Name))
	return &Publisher{connection: conn, channel: ch, queue: q}, nil
}

func (p *Publisher) Publish(event types.ScoreEvent) error {
	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode score event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		"",           // Exchange (empty means default)
		p.queue.Name, // Routing key (queue name in this case)
		false,        // Mandatory
		false,        // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Type:         string(event.Type),
			Timestamp:    event.CreatedAt,
			Body:         message,
		})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		zap.L().Warn("RabbitMQ channel close failed", zap.Error(err))
	}
	if err := p.connection.Close(); err != nil {
		zap.L().Warn("RabbitMQ connection close failed", zap.Error(err))
	}
}
