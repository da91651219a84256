package services

import (
	"fmt"
	"time"

	kafka_client "stockscore/clients/kafka"
	rabbitmq_client "stockscore/clients/rabbitmq"
	"stockscore/config"
	"stockscore/scoring"
	"stockscore/types"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher delivers score events to a broker.
type EventPublisher interface {
	Publish(event types.ScoreEvent) error
	Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(types.ScoreEvent) error { return nil }
func (noopPublisher) Close()                         {}

// NewEventPublisher connects the publisher selected by events.driver.
func NewEventPublisher(cfg *config.Config) (EventPublisher, error) {
	switch cfg.Events.Driver {
	case config.EventsKafka:
		k := cfg.Events.Kafka
		producer, err := kafka_client.NewProducer(kafka_client.Options{
			BootstrapServers:  k.BootstrapServers,
			Topic:             k.Topic,
			Partitions:        k.Partitions,
			ReplicationFactor: k.ReplicationFactor,
		})
		if err != nil {
			return nil, err
		}
		return producer, nil
	case config.EventsRabbitMQ:
		r := cfg.Events.RabbitMQ
		publisher, err := rabbitmq_client.NewPublisher(rabbitmq_client.Options{
			Server: r.Server,
			Port:   r.Port,
			User:   r.User,
			Pass:   r.Pass,
			Queue:  r.Queue,
		})
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.EventsNone, "":
		return noopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
}

// NewScoreEvent describes state as an event of the given type.
func NewScoreEvent(state scoring.PipelineState, typ types.EventType) types.ScoreEvent {
	return types.ScoreEvent{
		ID:                uuid.New().String(),
		Type:              typ,
		Symbol:            state.Ticker,
		Sector:            state.Peers.Sector,
		Stage:             state.Stage.String(),
		NormPE:            state.Score.NormPE,
		NormEPS:           state.Score.NormEPS,
		NormDCF:           state.Score.NormDCF.Ptr(),
		Sentiment:         state.Score.Sentiment.Ptr(),
		Total:             state.Score.Total,
		ExplanationStatus: string(state.ExplanationStatus),
		CreatedAt:         time.Now().UTC(),
	}
}

// EventService publishes pipeline outcomes. Failures are logged and never
// reach the pipeline.
type EventService struct {
	publisher EventPublisher
}

func NewEventService(publisher EventPublisher) *EventService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &EventService{publisher: publisher}
}

// ScoreSettled is the pipeline's OnSettle hook.
func (e *EventService) ScoreSettled(state scoring.PipelineState) {
	e.publish(NewScoreEvent(state, types.ScoreSettled))
}

// ExplanationFinished is the pipeline's OnExplanation hook.
func (e *EventService) ExplanationFinished(state scoring.PipelineState) {
	typ := types.ExplanationReady
	if state.ExplanationStatus == scoring.ExplanationUnavailable {
		typ = types.ExplanationFailed
	}
	e.publish(NewScoreEvent(state, typ))
}

func (e *EventService) publish(event types.ScoreEvent) {
	if err := e.publisher.Publish(event); err != nil {
		sentry.CaptureException(err)
		zap.L().Error("Failed to publish score event",
			zap.String("type", string(event.Type)),
			zap.String("symbol", event.Symbol),
			zap.Error(err))
		return
	}
	zap.L().Debug("Published score event", zap.String("type", string(event.Type)), zap.String("symbol", event.Symbol))
}

func (e *EventService) Close() {
	e.publisher.Close()
}
