package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	BookCreated         = "book.created"
	BookQuantityChanged = "book.quantity_changed"
	BookDeleted         = "book.deleted"
	TransactionRecorded = "transaction.recorded"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// NewEnvelope wraps data with a fresh event id.
func NewEnvelope(eventType string, data interface{}) Envelope {
	return Envelope{ID: uuid.NewString(), Type: eventType, OccurredAt: time.Now().UTC(), Data: data}
}

// Rabbit publishes events to a durable topic exchange. A nil *Rabbit discards events.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *Rabbit) Close() {
	if r == nil {
		return
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// Publish sends data wrapped in an Envelope, using the event type as routing key.
func (r *Rabbit) Publish(ctx context.Context, eventType string, data interface{}) error {
	if r == nil || r.ch == nil {
		return nil
	}
	body, err := json.Marshal(NewEnvelope(eventType, data))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return r.ch.PublishWithContext(ctx, r.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}
