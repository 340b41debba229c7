// Package publisher relays order ledger outbox events to Kafka.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/photopixel/internal/logger"
	"github.com/fjod/photopixel/internal/metrics"
	"github.com/fjod/photopixel/internal/orders"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic     = "orders-placed"
	defaultBatchSize = 100
)

type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*orders.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batchSize int
	repo      EventStore
	writer    MessageWriter
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func NewOutboxPoller(repo EventStore, writer MessageWriter, m *metrics.Metrics, log *slog.Logger) *OutboxPoller {
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		batchSize: defaultBatchSize,
		repo:      repo,
		writer:    writer,
		metrics:   m,
		log:       log,
	}
}

// Run polls until ctx is cancelled, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Error("failed to close kafka writer", "error", err)
		}
	}()

	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	events, err := p.repo.GetUnprocessedEvents(fetchCtx, p.batchSize)
	cancel()
	if err != nil {
		p.log.Error("failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.metrics.OutboxEvent("failed")
			p.log.Warn("failed to publish outbox event", "event_id", event.ID, "error", err)
			continue
		}

		markCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.repo.MarkEventAsProcessed(markCtx, event.ID)
		cancel()
		if err != nil {
			p.log.Error("failed to mark outbox event processed", "event_id", event.ID, "error", err)
			continue
		}
		p.metrics.OutboxEvent("published")
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *orders.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
