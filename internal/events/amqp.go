package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyConnected    = "device.connected"
	RoutingKeyDisconnected = "device.disconnected"
)

// LivenessEvent is the message body published for each transition.
type LivenessEvent struct {
	Event    string     `json:"event"`
	DeviceID string     `json:"deviceId"`
	At       time.Time  `json:"at"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes liveness transitions to a topic exchange.
// Failures are logged and dropped; liveness tracking never depends on the broker.
type AMQPPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       channel
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
}

func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	logger.Info("amqp liveness publisher ready", "exchange", exchange)
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}, nil
}

func newAMQPPublisher(ch channel, exchange string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}
}

func (p *AMQPPublisher) DeviceConnected(deviceID string, at time.Time) {
	p.publish(RoutingKeyConnected, LivenessEvent{Event: RoutingKeyConnected, DeviceID: deviceID, At: at.UTC()})
}

func (p *AMQPPublisher) DeviceDisconnected(deviceID string, lastSeen, at time.Time) {
	ls := lastSeen.UTC()
	p.publish(RoutingKeyDisconnected, LivenessEvent{Event: RoutingKeyDisconnected, DeviceID: deviceID, At: at.UTC(), LastSeen: &ls})
}

func (p *AMQPPublisher) publish(key string, evt LivenessEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("amqp marshal liveness event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.At,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Warn("amqp publish failed", "error", err, "routing_key", key, "device_id", evt.DeviceID)
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	if p.ch != nil {
		firstErr = p.ch.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
