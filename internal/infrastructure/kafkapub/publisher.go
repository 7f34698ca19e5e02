// Package kafkapub forwards domain events to a Kafka topic as JSON.
package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	domoutbox "github.com/Zhima-Mochi/libraryhold/internal/domain/outbox"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"
)

const (
	peerKafka   = "kafka"
	headerEvent = "event_name"
)

// Writer is the part of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer Writer
	log    observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

// NewWriter builds a writer that hashes message keys so all events of one
// item land on the same partition in order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func New(writer Writer, tel observability.Observability) *Publisher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Publisher{
		writer:       writer,
		log:          tel.Logger().With(observability.F("component", "kafka_publisher")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafkapub: marshal %s: %w", e.EventName(), err)
	}

	msg := kafka.Message{
		Value:   payload,
		Headers: []kafka.Header{{Key: headerEvent, Value: []byte(e.EventName())}},
	}
	if k, ok := e.(domoutbox.Keyed); ok {
		msg.Key = []byte(strconv.FormatInt(k.PartitionKey(), 10))
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
		logctx.FromOr(ctx, p.log).Warn("kafka_publish_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
	}
	p.extCounter.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", e.EventName()),
	)
	if err != nil {
		return fmt.Errorf("kafkapub: write %s: %w", e.EventName(), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// headerCarrier lets the OTel propagator write trace headers onto a message.
type headerCarrier struct{ msg *kafka.Message }

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
