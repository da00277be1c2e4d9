package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ publisher configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	Exchange          string
	RoutingKey        string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// Publisher is a publish-only RabbitMQ client for outcome events
type Publisher struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewPublisher creates a connected publisher and declares the exchange
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	p := &Publisher{
		config: config,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ publisher: %w", err)
	}

	return p, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (p *Publisher) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.config.User,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: p.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := p.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		p.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		p.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		p.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(p.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// Topic exchange so downstream consumers can bind per routing key
	err = p.channel.ExchangeDeclare(
		p.config.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		p.channel.Close()
		p.conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.logger.Info("Successfully connected to RabbitMQ",
		slog.String("exchange", p.config.Exchange),
	)

	return nil
}

// Publish sends a JSON body to the configured exchange
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return fmt.Errorf("rabbitmq channel is not open")
	}

	err := p.channel.PublishWithContext(ctx,
		p.config.Exchange,
		p.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// Close closes the channel and connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
		p.channel = nil
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			p.conn = nil
			return err
		}
		p.conn = nil
	}

	p.logger.Info("RabbitMQ publisher closed")
	return nil
}
