package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQNotifier publishes notifications to a durable queue. Publish
// failures are logged and swallowed: notification delivery must never
// fail the core operation.
type RabbitMQNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	log     *logrus.Logger
}

type envelope struct {
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewRabbitMQNotifier connects, declares the queue, and returns the
// notifier.
func NewRabbitMQNotifier(url, queueName string, log *logrus.Logger) (*RabbitMQNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &RabbitMQNotifier{conn: conn, channel: channel, queue: q, log: log}, nil
}

func (n *RabbitMQNotifier) Notify(ctx context.Context, kind string, payload any) {
	body, err := json.Marshal(envelope{Kind: kind, Payload: payload, EmittedAt: time.Now().UTC()})
	if err != nil {
		n.log.WithError(err).WithField("kind", kind).Warn("drop notification: marshal failed")
		return
	}

	err = n.channel.PublishWithContext(
		ctx,
		"",           // exchange
		n.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		n.log.WithError(err).WithField("kind", kind).Warn("drop notification: publish failed")
	}
}

// Close shuts down the channel and connection.
func (n *RabbitMQNotifier) Close() error {
	if err := n.channel.Close(); err != nil {
		n.conn.Close()
		return err
	}
	return n.conn.Close()
}
