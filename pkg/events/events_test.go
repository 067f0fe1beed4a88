package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestBoltEmitterWritesJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	em := NewBoltEmitter(&buf, "info")
	em.Emit(context.Background(), TransferCreate, map[string]any{
		"transfer_id": "TR-1",
		"qty":         12,
		"confidence":  0.87,
		"preview":     false,
	})
	out := buf.String()
	if !strings.Contains(out, TransferCreate) {
		t.Fatalf("expected event name in output, got %q", out)
	}
	for _, want := range []string{"transfer_id", "TR-1", "qty", "confidence"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestBoltEmitterDebugSuppressedAtInfo(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	em := NewBoltEmitter(&buf, "info")
	em.Debug(context.Background(), PolicySanitized, map[string]any{"field": "confidence"})
	if buf.Len() != 0 {
		t.Fatalf("debug event should be suppressed at info level, got %q", buf.String())
	}
}

func TestBoltEmitterDebugAtDebugLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	em := NewBoltEmitter(&buf, "debug")
	em.Debug(context.Background(), PolicySanitized, map[string]any{"field": "confidence"})
	if !strings.Contains(buf.String(), PolicySanitized) {
		t.Fatalf("expected debug event, got %q", buf.String())
	}
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()
	var a, b bytes.Buffer
	m := Multi{NewBoltEmitter(&a, "info"), nil, NewBoltEmitter(&b, "info")}
	m.Emit(context.Background(), TransferSkip, map[string]any{"sku": "SKU1"})
	if a.Len() == 0 || b.Len() == 0 {
		t.Fatal("expected both sinks written")
	}
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherEnvelope(t *testing.T) {
	t.Parallel()
	fw := &fakeKafkaWriter{}
	p := &KafkaPublisher{writer: fw}
	p.Emit(context.Background(), TransferCreate, map[string]any{"transfer_id": "TR-9"})
	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != TransferCreate {
		t.Fatalf("unexpected key %q", fw.msgs[0].Key)
	}
	var env envelope
	if err := json.Unmarshal(fw.msgs[0].Value, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Event != TransferCreate || env.Fields["transfer_id"] != "TR-9" {
		t.Fatalf("unexpected envelope %#v", env)
	}
}

func TestKafkaPublisherSwallowsWriteError(t *testing.T) {
	t.Parallel()
	p := &KafkaPublisher{writer: &fakeKafkaWriter{err: errors.New("broker down")}}
	p.Emit(context.Background(), TransferSkip, nil)
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "transfers"}); err == nil {
		t.Fatal("expected error for missing brokers")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"  "}, Topic: "transfers"}); err == nil {
		t.Fatal("expected error for blank brokers")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("expected error for missing topic")
	}
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "transfers"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
