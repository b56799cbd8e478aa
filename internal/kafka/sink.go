package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

const envelopeVersion = 1

// Publisher is satisfied by *Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header)
}

// Sink wraps domain events in the versioned envelope and routes them to their topic,
// keyed by aggregate order id. It implements orders.EventSink and orders.Notifier.
type Sink struct {
	pub     Publisher
	service string
	now     func() time.Time
}

func NewSink(pub Publisher, service string) *Sink {
	return &Sink{pub: pub, service: service, now: time.Now}
}

func (s *Sink) Publish(ctx context.Context, ev orders.Event) error {
	topic := orders.TopicFor(ev.Type)
	if topic == "" {
		return fmt.Errorf("no topic for event type %q", ev.Type)
	}
	env, err := s.envelope(ctx, ev)
	if err != nil {
		return err
	}
	s.pub.Publish(topic, orders.PartitionKey(ev.OrderID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	)
	return nil
}

// NotifySellerNewOrder puts the seller message on the notifications topic, keyed by seller
// so one seller's messages stay ordered.
func (s *Sink) NotifySellerNewOrder(ctx context.Context, sellerID, subOrderNumber string, items []orders.SubOrderItem, totalCents int64) error {
	ev := orders.Event{
		Type: orders.EventSellerNewOrder,
		Payload: orders.SellerNewOrderPayload{
			SellerID:       sellerID,
			SubOrderNumber: subOrderNumber,
			Items:          items,
			TotalCents:     totalCents,
		},
	}
	env, err := s.envelope(ctx, ev)
	if err != nil {
		return err
	}
	s.pub.Publish(orders.TopicSellerNotifications, []byte(sellerID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	)
	return nil
}

func (s *Sink) envelope(ctx context.Context, ev orders.Event) (orders.Envelope, error) {
	payload, err := marshal(ev.Payload)
	if err != nil {
		return orders.Envelope{}, err
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  envelopeVersion,
		OccurredAt:    s.now().UTC(),
		Producer:      s.service,
		CorrelationID: ev.OrderID,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return env, nil
}
