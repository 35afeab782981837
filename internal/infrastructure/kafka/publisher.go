package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	headerEventType = "event_type"
	peerKafka       = "kafka"
)

// Publisher forwards outbox events to a Kafka topic, keyed by aggregate so one
// order's events stay ordered within a partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      observability.Logger
	ext      observability.Counter
	extDur   observability.Histogram
}

// NewSyncProducer dials the brokers with acks from all in-sync replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	return p, nil
}

func NewPublisher(producer sarama.SyncProducer, topic string, tel observability.Observability) *Publisher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		log:      tel.Logger().With(observability.F("component", "kafka_publisher"), observability.F("topic", topic)),
		ext:      tel.Metrics().Counter(observability.MExternalRequests),
		extDur:   tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []sarama.RecordHeader{{Key: []byte(headerEventType), Value: []byte(e.EventName())}}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: headers,
	}
	if k, ok := e.(domoutbox.Keyed); ok && k.Key() != "" {
		msg.Key = sarama.StringEncoder(k.Key())
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.ext.Add(1,
		observability.L("peer", peerKafka),
		observability.L("endpoint", p.topic),
		observability.L("outcome", outcome),
	)
	p.extDur.Observe(time.Since(start).Seconds(),
		observability.L("peer", peerKafka),
		observability.L("endpoint", p.topic),
	)
	if err != nil {
		return fmt.Errorf("kafka: send %s: %w", e.EventName(), err)
	}

	p.log.Debug("kafka_message_sent",
		observability.F("event", e.EventName()),
		observability.F("partition", partition),
		observability.F("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
