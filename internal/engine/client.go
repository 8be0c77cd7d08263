package engine

import (
	"context"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// Client is the boundary to the browser-automation scraping engine.
// Every call may block for a full browser session; callers must not issue
// calls concurrently against the same engine session.
type Client interface {
	// Scrape signs in with creds and returns the transactions since opts.StartDate.
	// A failed login is reported in the result, not as an error; errors are
	// reserved for transport and engine-internal failures.
	Scrape(ctx context.Context, opts model.ScrapeOptions, creds model.Credentials) (*model.ScrapeResult, error)

	// TriggerTwoFactorAuth dispatches an OTP to phoneNumber out of band.
	TriggerTwoFactorAuth(ctx context.Context, phoneNumber string) error

	// ResolveOtpToken logs in with creds and mints a long-term token. The engine
	// calls retriever when its login flow reaches the OTP step.
	ResolveOtpToken(ctx context.Context, creds model.Credentials, retriever OtpRetriever) (*model.TokenResult, error)

	// GetLongTermTwoFactorToken exchanges the OTP sent by TriggerTwoFactorAuth
	// for a long-term token.
	GetLongTermTwoFactorToken(ctx context.Context, otpCode string) (*model.TokenResult, error)
}

// OtpRetriever supplies a one-time code on demand.
type OtpRetriever interface {
	GetCode(ctx context.Context) (string, error)
}

// OtpRetrieverFunc adapts a function to OtpRetriever.
type OtpRetrieverFunc func(ctx context.Context) (string, error)

func (f OtpRetrieverFunc) GetCode(ctx context.Context) (string, error) {
	return f(ctx)
}
