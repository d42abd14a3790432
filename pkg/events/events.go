package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/AFixt/meetabl-api/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Booking lifecycle
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCanceled  = "booking.canceled"

	// Payment events
	PaymentIntentCreated = "payment.intent.created"
	PaymentFailed        = "payment.failed"

	// Notification events
	NotificationSent   = "notification.sent"
	NotificationFailed = "notification.failed"
)

// Event payloads
type BookingCreatedEvent struct {
	BookingID     int64     `json:"booking_id"`
	HostID        int64     `json:"host_id"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
}

type BookingConfirmedEvent struct {
	BookingID       int64     `json:"booking_id"`
	HostID          int64     `json:"host_id"`
	CustomerEmail   string    `json:"customer_email"`
	StartTime       time.Time `json:"start_time"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

type BookingCanceledEvent struct {
	BookingID     int64     `json:"booking_id"`
	HostID        int64     `json:"host_id"`
	CustomerEmail string    `json:"customer_email"`
	Reason        string    `json:"reason"`
	CanceledAt    time.Time `json:"canceled_at"`
}

type PaymentIntentCreatedEvent struct {
	BookingID    int64  `json:"booking_id"`
	IntentID     string `json:"intent_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"client_secret"`
}

type NotificationSentEvent struct {
	NotificationID int64     `json:"notification_id"`
	BookingID      int64     `json:"booking_id"`
	Type           string    `json:"type"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	SentAt         time.Time `json:"sent_at"`
}
