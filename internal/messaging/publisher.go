package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dinein_backend/internal/config"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPaymentReceived is used for every accepted payment.
const RoutingKeyPaymentReceived = "payment.received"

// Publisher sends domain events to the notifications exchange.
type Publisher interface {
	services.PaymentNotifier
	Close() error
}

// New dials RabbitMQ. An empty URL yields a publisher that drops events.
func New(cfg config.RabbitMQConfig) (Publisher, error) {
	if cfg.URL == "" {
		utils.LogWarn("RabbitMQ URL is empty, payment notifications are disabled")
		return NopPublisher{}, nil
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare %s exchange: %w", cfg.Exchange, err)
	}

	utils.LogInfo("RabbitMQ publisher ready", map[string]interface{}{"exchange": cfg.Exchange})
	return &amqpPublisher{conn: conn, channel: ch, exchange: cfg.Exchange, timeout: cfg.PublishTimeout}, nil
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	timeout  time.Duration
}

func (p *amqpPublisher) PaymentReceived(ctx context.Context, event services.PaymentReceivedEvent) error {
	return p.publish(ctx, RoutingKeyPaymentReceived, event.EventID, event)
}

func (p *amqpPublisher) publish(ctx context.Context, routingKey, messageID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// amqp091 channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher logs events at debug level and drops them.
type NopPublisher struct{}

func (NopPublisher) PaymentReceived(_ context.Context, event services.PaymentReceivedEvent) error {
	utils.LogDebug("Payment notification dropped", map[string]interface{}{"eventID": event.EventID, "transactionID": event.TransactionID})
	return nil
}

func (NopPublisher) Close() error { return nil }
