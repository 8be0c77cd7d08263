package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical event wrapper published on NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	ClientID      string          `json:"client_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// TransactionsScrapedEvent is the payload emitted for each scraped account.
type TransactionsScrapedEvent struct {
	Company       CompanyID     `json:"company"`
	AccountName   string        `json:"account_name"`
	AccountNumber string        `json:"account_number"`
	StartDate     time.Time     `json:"start_date"`
	ScrapedAt     time.Time     `json:"scraped_at"`
	Transactions  []Transaction `json:"transactions"`
}

// SyncCheckpoint records the last successful scrape of an account.
type SyncCheckpoint struct {
	Company          CompanyID `json:"company"`
	AccountName      string    `json:"account_name"`
	LastScrapedAt    time.Time `json:"last_scraped_at"`
	StartDate        time.Time `json:"start_date"`
	TransactionCount int       `json:"transaction_count"`
}
