package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/internal/publisher"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes scraped-transaction envelopes to RabbitMQ
type Publisher struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
	service    string
	logger     *zap.Logger
}

// NewPublisher dials url and opens a channel. An empty exchange publishes
// through the default exchange, so routingKey names the queue.
func NewPublisher(url, exchange, routingKey, service string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		service:    service,
		logger:     logger,
	}, nil
}

func (p *Publisher) PublishTransactionsScraped(ctx context.Context, company model.CompanyID, accountName string, startDate time.Time, accounts []model.Account) error {
	envs, err := publisher.TransactionEnvelopes(p.routingKey, company, accountName, startDate, accounts)
	if err != nil {
		metrics.IncError("rabbitmq", "marshal_failed")
		return err
	}
	for _, env := range envs {
		if err := p.publish(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, env *model.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		metrics.IncError("rabbitmq", "marshal_failed")
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.ID.String(),
			CorrelationId: env.CorrelationID.String(),
			Type:          env.EventType,
			AppId:         p.service,
			Timestamp:     env.Timestamp,
			Body:          body,
		},
	)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("routing_key", p.routingKey),
			zap.String("client_id", env.ClientID),
			zap.Error(err))
		metrics.IncError("rabbitmq", "publish_failed")
		return fmt.Errorf("publish to %s: %w", p.routingKey, err)
	}

	p.logger.Debug("rabbitmq.published",
		zap.String("routing_key", p.routingKey),
		zap.String("event_id", env.ID.String()))
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
