package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"budgetfx/internal/rates"
)

const publishTimeout = 5 * time.Second

// Publisher announces installed snapshots.
type Publisher interface {
	PublishRatesRefreshed(ctx context.Context, snap *rates.Snapshot) error
	Close() error
}

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	conn       *amqp091.Connection
	ch         channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// Options configure the AMQP publisher.
type Options struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(opts Options, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := newPublisher(ch, opts, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, opts Options, logger zerolog.Logger) (*AMQPPublisher, error) {
	if err := ch.ExchangeDeclare(
		opts.Exchange,
		amqp091.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{
		ch:         ch,
		exchange:   opts.Exchange,
		routingKey: opts.RoutingKey,
		logger:     logger.With().Str("component", "events").Logger(),
	}, nil
}

// PublishRatesRefreshed publishes snap as a RatesRefreshed message.
func (p *AMQPPublisher) PublishRatesRefreshed(ctx context.Context, snap *rates.Snapshot) error {
	body, err := NewRatesRefreshed(snap).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    snap.FetchedAt,
		Type:         "rates.refreshed",
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug().Str("base", string(snap.Base)).Str("exchange", p.exchange).Msg("published rates refreshed")
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Listener adapts a publisher to rates.Store.OnChange. Publishing runs off the install path;
// failures are logged.
func Listener(ctx context.Context, pub Publisher, logger zerolog.Logger) func(*rates.Snapshot) {
	logger = logger.With().Str("component", "events").Logger()
	return func(snap *rates.Snapshot) {
		go func() {
			if err := pub.PublishRatesRefreshed(ctx, snap); err != nil {
				logger.Warn().Err(err).Str("base", string(snap.Base)).Msg("failed to publish rates refreshed")
			}
		}()
	}
}

var _ Publisher = (*AMQPPublisher)(nil)
