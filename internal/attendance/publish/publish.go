// Package publish forwards newly created canonical events to downstream
// consumers (payroll, dashboards) over Kafka.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/attendance/types"
)

const DefaultTopic = "attendance.events"

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, types.CanonicalEvent) error { return nil }
func (Nop) Close() error                                        { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers string // comma-separated host:port list
	Topic   string
}

// Kafka publishes events as JSON keyed by subject id, so one subject's
// events stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafka returns an asynchronous publisher. Delivery failures are logged
// by the writer's completion callback and never reach the caller.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) *Kafka {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("kafka delivery failed", "messages", len(msgs), "err", err)
			}
		},
	}
	return newKafka(w, logger)
}

func newKafka(w messageWriter, logger *slog.Logger) *Kafka {
	return &Kafka{writer: w, logger: logger}
}

// eventMessage is the JSON document written to the topic.
type eventMessage struct {
	types.EventView
	ReceivedAt string `json:"received_at"`
}

func (k *Kafka) Publish(ctx context.Context, ev types.CanonicalEvent) error {
	body, err := json.Marshal(eventMessage{
		EventView:  ev.View(),
		ReceivedAt: ev.ReceivedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.EventID, err)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SubjectID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	}); err != nil {
		return fmt.Errorf("write event %s: %w", ev.EventID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func splitBrokers(v string) []string {
	var out []string
	for _, b := range strings.Split(v, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
