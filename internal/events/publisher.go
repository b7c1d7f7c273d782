package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nordmart/shopcore/internal/order"
)

const OrderCreatedQueue = "order.created"

// OrderCreated is the contract published after a checkout commits. Prices
// travel as strings so consumers in other languages keep the exact decimal.
type OrderCreated struct {
	EventType  string             `json:"eventType"`
	EventID    string             `json:"eventId"`
	OrderID    string             `json:"orderId"`
	UserID     string             `json:"userId"`
	TotalPrice string             `json:"totalPrice"`
	Items      []OrderCreatedItem `json:"items"`
	Timestamp  time.Time          `json:"timestamp"`
}

type OrderCreatedItem struct {
	ProductID string `json:"productId"`
	Count     int    `json:"count"`
}

type Publisher struct {
	ch *amqp.Channel
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare the queue so publish never fails due to missing infra
	if _, err := ch.QueueDeclare(OrderCreatedQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", OrderCreatedQueue, err)
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	ev := OrderCreated{
		EventType:  "OrderCreated",
		EventID:    uuid.NewString(),
		OrderID:    o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice.String(),
		Timestamp:  time.Now().UTC(),
	}
	for _, l := range o.Lines {
		ev.Items = append(ev.Items, OrderCreatedItem{ProductID: l.ProductID, Count: l.Count})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderCreated: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",                // default exchange
		OrderCreatedQueue, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
