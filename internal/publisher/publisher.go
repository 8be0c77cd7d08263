package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/pkg/logger"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

const (
	EventTransactionsScraped = "bank.transactions.scraped"
	eventVersion             = "1.0.0"
)

// Publisher wraps a NATS connection and publishes canonical events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a Publisher on a JetStream-enabled connection.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes env. An empty subject falls back to
// the publisher's default subject.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"client_id":      []string{env.ClientID},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"client_id", env.ClientID,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Infow("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"client_id", env.ClientID,
	)
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// PublishTransactionsScraped emits one event per scraped account. All events
// of a run share a correlation id. Credentials are never part of the payload.
func (p *Publisher) PublishTransactionsScraped(ctx context.Context, company model.CompanyID, accountName string, startDate time.Time, accounts []model.Account) error {
	envs, err := TransactionEnvelopes(p.subject, company, accountName, startDate, accounts)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	for _, env := range envs {
		if err := p.PublishEnvelope(ctx, p.subject, env); err != nil {
			return err
		}
	}
	return nil
}

// TransactionEnvelopes wraps each account's transactions in an envelope
// addressed to topic. The envelopes share one correlation id.
func TransactionEnvelopes(topic string, company model.CompanyID, accountName string, startDate time.Time, accounts []model.Account) ([]*model.Envelope, error) {
	correlationID := uuid.New()
	scrapedAt := time.Now().UTC()

	envs := make([]*model.Envelope, 0, len(accounts))
	for _, acct := range accounts {
		payload, err := json.Marshal(model.TransactionsScrapedEvent{
			Company:       company,
			AccountName:   accountName,
			AccountNumber: acct.AccountNumber,
			StartDate:     startDate,
			ScrapedAt:     scrapedAt,
			Transactions:  acct.Transactions,
		})
		if err != nil {
			return nil, err
		}
		envs = append(envs, &model.Envelope{
			ID:            uuid.New(),
			CorrelationID: correlationID,
			ClientID:      accountName,
			Topic:         topic,
			EventType:     EventTransactionsScraped,
			Version:       eventVersion,
			Timestamp:     scrapedAt,
			Payload:       payload,
		})
	}
	return envs, nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
