// Package kafkabus publishes slot changes as Kafka messages keyed by slot.
package kafkabus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sweeney/outlet-monitor/internal/fanout"
	"github.com/sweeney/outlet-monitor/internal/logic"
)

// DefaultTopic is the topic used when none is configured.
const DefaultTopic = "outlet.timeline"

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the JSON value of each record.
type Message struct {
	Slot  string `json:"slot"`
	State string `json:"state"`
	Kind  string `json:"kind"`
	At    string `json:"at"`
}

// Sink writes one record per slot change.
type Sink struct {
	w MessageWriter
}

// NewWriter creates a synchronous writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewSink wraps w.
func NewSink(w MessageWriter) *Sink {
	return &Sink{w: w}
}

// Name implements fanout.Sink.
func (s *Sink) Name() string { return "kafka" }

// Deliver implements fanout.Sink.
func (s *Sink) Deliver(ctx context.Context, ev fanout.Event) error {
	if len(ev.Changes) == 0 {
		return nil
	}
	msgs, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d messages: %w", len(msgs), err)
	}
	return nil
}

// Close closes the underlying writer.
func (s *Sink) Close() error {
	return s.w.Close()
}

// Encode converts an event into Kafka messages keyed by slot so all writes to
// one slot land on the same partition.
func Encode(ev fanout.Event) ([]kafka.Message, error) {
	at := ev.At.UTC().Format(time.RFC3339)
	msgs := make([]kafka.Message, 0, len(ev.Changes))
	for _, c := range ev.Changes {
		slot := logic.FormatSlot(c.Slot)
		val, err := json.Marshal(Message{Slot: slot, State: string(c.State), Kind: string(c.Kind), At: at})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(slot),
			Value: val,
			Time:  ev.At,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(c.Kind)},
			},
		})
	}
	return msgs, nil
}
