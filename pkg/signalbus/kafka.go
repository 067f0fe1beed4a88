// Package signalbus feeds demand signals from Kafka into the policy
// daemon. Each message is one JSON-encoded DemandSignal.
package signalbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pearcestephens/vapeshed-transfer-sub007/pkg/models"
)

// ErrMalformedSignal marks a message that decoded badly. Consumers skip
// these rather than stopping the loop.
var ErrMalformedSignal = errors.New("malformed demand signal")

type Consumer interface {
	ReadSignal(ctx context.Context) (models.DemandSignal, error)
	Close() error
}

type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConsumer struct {
	reader kafkaReader
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewKafkaConsumer(cfg KafkaConfig) (*KafkaConsumer, error) {
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
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("kafka group id required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: r}, nil
}

func (c *KafkaConsumer) ReadSignal(ctx context.Context) (models.DemandSignal, error) {
	if c == nil || c.reader == nil {
		return models.DemandSignal{}, fmt.Errorf("kafka consumer not initialized")
	}
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return models.DemandSignal{}, err
	}
	var signal models.DemandSignal
	if err := json.Unmarshal(msg.Value, &signal); err != nil {
		return models.DemandSignal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	return signal, nil
}

func (c *KafkaConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
