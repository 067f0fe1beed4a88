package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher mirrors decision events onto a Kafka topic so downstream
// consumers (ops tooling, replenishment analytics) see the same trail the
// logs do. Publishing is best-effort; a broker outage never fails a
// proposal.
type KafkaPublisher struct {
	writer kafkaWriter
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w}, nil
}

type envelope struct {
	Event  string         `json:"event"`
	At     string         `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (p *KafkaPublisher) Emit(ctx context.Context, event string, fields map[string]any) {
	if p == nil || p.writer == nil {
		return
	}
	payload, err := json.Marshal(envelope{
		Event:  event,
		At:     time.Now().UTC().Format(time.RFC3339Nano),
		Fields: fields,
	})
	if err != nil {
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event),
		Value: payload,
	}); err != nil {
		log.Printf("kafka event publish failed: %v", err)
	}
}

// Debug events stay local; the bus only carries decision-level events.
func (p *KafkaPublisher) Debug(ctx context.Context, event string, fields map[string]any) {}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
