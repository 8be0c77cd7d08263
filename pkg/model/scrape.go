package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScrapeOptions configures a single engine session.
type ScrapeOptions struct {
	CompanyID           CompanyID `json:"companyId"`
	StartDate           time.Time `json:"startDate"`
	CombineInstallments bool      `json:"combineInstallments"`
	ShowBrowser         bool      `json:"showBrowser"`
}

// Transaction is passed through from the engine without validation.
type Transaction struct {
	Identifier       string          `json:"identifier"`
	Type             string          `json:"type"`
	Date             string          `json:"date"`
	ChargedAmount    decimal.Decimal `json:"chargedAmount"`
	OriginalAmount   decimal.Decimal `json:"originalAmount"`
	OriginalCurrency string          `json:"originalCurrency,omitempty"`
	Description      string          `json:"description"`
	Memo             string          `json:"memo,omitempty"`
	Status           string          `json:"status"`
}

// Account groups the transactions scraped for one account number.
type Account struct {
	AccountNumber string        `json:"accountNumber"`
	Transactions  []Transaction `json:"txns"`
}

// ScrapeResult is the all-or-nothing outcome of one scrape attempt.
// On failure Accounts is empty and ErrorType/ErrorMessage describe why.
type ScrapeResult struct {
	Success      bool      `json:"success"`
	Accounts     []Account `json:"accounts,omitempty"`
	ErrorType    string    `json:"errorType,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// TransactionCount sums transactions across all accounts.
func (r *ScrapeResult) TransactionCount() int {
	n := 0
	for _, a := range r.Accounts {
		n += len(a.Transactions)
	}
	return n
}

// TokenResult is the outcome of minting a long-term two-factor token.
type TokenResult struct {
	Success       bool   `json:"success"`
	LongTermToken string `json:"longTermTwoFactorAuthToken,omitempty"`
	ErrorType     string `json:"errorType,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// RunState is the per-invocation record of a controller run. It is never persisted.
type RunState struct {
	Credentials  Credentials
	Attempts     int
	Last         *ScrapeResult
	Renewal      *TokenResult
	RenewedToken string
}
