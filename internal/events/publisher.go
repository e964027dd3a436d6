// Package events publishes order lifecycle notifications to RabbitMQ so
// downstream consumers (notification senders, analytics) can react without
// being in the request path.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "orders.events"

// Routing keys on the orders.events topic exchange.
const (
	KeyOrderCreated    = "order.created"
	KeyStatusChanged   = "order.status_changed"
	KeyCourierAssigned = "order.courier_assigned"
)

// OrderMessage is the wire payload for every order event.
type OrderMessage struct {
	OrderID      string `json:"order_id"`
	RestaurantID string `json:"restaurant_id"`
	CustomerID   string `json:"customer_id"`
	OldStatus    string `json:"old_status,omitempty"`
	NewStatus    string `json:"new_status,omitempty"`
	CourierID    string `json:"courier_id,omitempty"`
	TotalPrice   string `json:"total_price,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

// Publisher is an AMQP publisher for order events. A nil *Publisher is
// valid and drops everything, so callers never have to branch on whether
// the broker is configured.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials the broker and declares the orders.events topic exchange.
func Connect(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Publish sends msg to the topic exchange under the given routing key.
func (p *Publisher) Publish(ctx context.Context, key string, msg OrderMessage) error {
	if p == nil {
		return nil
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.ch.PublishWithContext(ctx, exchangeName, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/json",
		Body:         body,
	})
}
