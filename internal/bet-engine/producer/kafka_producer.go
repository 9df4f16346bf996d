package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	sharedkafka "github.com/radieske/crypto-bet-platform/internal/shared/kafka"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado pelo publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Subscriber registra handlers no barramento
type Subscriber interface {
	Subscribe(eventType string, h bus.Handler)
}

// Envelope é o formato publicado no Kafka para consumidores externos
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error,omitempty"` // só na DLQ
}

// KafkaPublisher espelha os eventos do barramento nos tópicos Kafka
// e envia para a DLQ os eventos cujo dispatch falhou.
type KafkaPublisher struct {
	writer   MessageWriter
	topics   map[string]string // tipo de evento -> tópico
	dlqTopic string
	log      *zap.Logger

	OnForwarded func(topic string) // métricas
	OnError     func(stage string) // métricas por fase
}

func NewKafkaPublisher(w MessageWriter, topics map[string]string, dlqTopic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topics: topics, dlqTopic: dlqTopic, log: log}
}

// Subscribe registra Forward para cada tipo mapeado
func (p *KafkaPublisher) Subscribe(b Subscriber) {
	for eventType := range p.topics {
		b.Subscribe(eventType, p.Forward)
	}
}

// Forward publica o evento no tópico do seu tipo, chaveado pela partition key
func (p *KafkaPublisher) Forward(ctx context.Context, msg bus.Message) error {
	topic, ok := p.topics[msg.Type]
	if !ok {
		return nil
	}

	raw, err := events.Encode(msg.Payload)
	if err != nil {
		p.fail("encode")
		return err
	}
	value, err := json.Marshal(Envelope{
		EventID:   msg.ID,
		EventType: msg.Type,
		Timestamp: msg.Timestamp,
		Payload:   raw,
	})
	if err != nil {
		p.fail("encode")
		return err
	}

	if err := p.writer.WriteMessages(ctx, sharedkafka.JSONMessage(topic, msg.Payload.PartitionKey(), value)); err != nil {
		p.fail("write")
		return fmt.Errorf("forward %s to %s: %w", msg.Type, topic, err)
	}

	if p.OnForwarded != nil {
		p.OnForwarded(topic)
	}
	p.log.Debug("event forwarded", zap.String("event_id", msg.ID), zap.String("topic", topic))
	return nil
}

// HandleFailure grava o evento original e a causa na DLQ
func (p *KafkaPublisher) HandleFailure(ctx context.Context, e model.Event, cause error) error {
	env := Envelope{
		EventID:   e.ID,
		EventType: e.Type,
		Timestamp: e.Timestamp,
		Payload:   e.Payload,
	}
	if cause != nil {
		env.Error = cause.Error()
	}
	if !json.Valid(env.Payload) {
		env.Payload = nil
	}

	value, err := json.Marshal(env)
	if err != nil {
		p.fail("dlq_encode")
		return err
	}
	if err := p.writer.WriteMessages(ctx, sharedkafka.JSONMessage(p.dlqTopic, e.ID, value)); err != nil {
		p.fail("dlq_write")
		return fmt.Errorf("write dlq: %w", err)
	}

	p.log.Warn("event sent to dlq", zap.String("event_id", e.ID), zap.String("event_type", e.Type))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
