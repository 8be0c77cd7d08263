package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/engine"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// mockEngine replays canned responses and records every call.
type mockEngine struct {
	scrapeResults []*model.ScrapeResult
	scrapeErrs    []error
	scrapeCreds   []model.Credentials

	resolveResult *model.TokenResult
	resolveErr    error
	resolveCreds  []model.Credentials
	callRetriever bool

	triggerErr   error
	triggerPhone []string

	longTermResult *model.TokenResult
	longTermErr    error
	longTermCodes  []string
}

func (m *mockEngine) Scrape(_ context.Context, _ model.ScrapeOptions, creds model.Credentials) (*model.ScrapeResult, error) {
	i := len(m.scrapeCreds)
	m.scrapeCreds = append(m.scrapeCreds, creds)
	if i < len(m.scrapeErrs) && m.scrapeErrs[i] != nil {
		return nil, m.scrapeErrs[i]
	}
	if i < len(m.scrapeResults) {
		return m.scrapeResults[i], nil
	}
	return nil, errors.New("unexpected scrape call")
}

func (m *mockEngine) TriggerTwoFactorAuth(_ context.Context, phone string) error {
	m.triggerPhone = append(m.triggerPhone, phone)
	return m.triggerErr
}

func (m *mockEngine) ResolveOtpToken(ctx context.Context, creds model.Credentials, r engine.OtpRetriever) (*model.TokenResult, error) {
	m.resolveCreds = append(m.resolveCreds, creds)
	if m.callRetriever {
		if _, err := r.GetCode(ctx); err != nil {
			return nil, fmt.Errorf("resolve otp token: %w: %w", engine.ErrRetrieverFailed, err)
		}
	}
	return m.resolveResult, m.resolveErr
}

func (m *mockEngine) GetLongTermTwoFactorToken(_ context.Context, code string) (*model.TokenResult, error) {
	m.longTermCodes = append(m.longTermCodes, code)
	return m.longTermResult, m.longTermErr
}

type stubRetriever struct {
	code  string
	err   error
	calls int
}

func (s *stubRetriever) GetCode(context.Context) (string, error) {
	s.calls++
	return s.code, s.err
}

var oneZeroOpts = model.ScrapeOptions{CompanyID: model.CompanyOneZero}

func baseCreds() model.Credentials {
	return model.Credentials{
		Email:            "user@example.com",
		Password:         "secret",
		PhoneNumber:      "+972501234567",
		OTPLongTermToken: "stale",
	}
}

func expiredResult() *model.ScrapeResult {
	return &model.ScrapeResult{
		Success:      false,
		ErrorType:    "GENERIC",
		ErrorMessage: "TypeError: Cannot read properties of undefined (reading 'idToken')",
	}
}

func okResult() *model.ScrapeResult {
	return &model.ScrapeResult{
		Success: true,
		Accounts: []model.Account{{
			AccountNumber: "001",
			Transactions: []model.Transaction{{
				Identifier:    "tx-1",
				Type:          "normal",
				Date:          "2024-03-01T00:00:00.000Z",
				ChargedAmount: decimal.RequireFromString("-42.50"),
				Description:   "Coffee",
				Status:        "completed",
			}},
		}},
	}
}

func TestRun_SuccessNeedsNoRenewal(t *testing.T) {
	m := &mockEngine{scrapeResults: []*model.ScrapeResult{okResult()}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Attempts)
	assert.Empty(t, m.resolveCreds)
	assert.Empty(t, state.RenewedToken)
	assert.Equal(t, "stale", state.Credentials.OTPLongTermToken)
}

// Scenario A: expired token, successful renewal, one retry.
func TestRun_RenewsExpiredTokenAndRetriesOnce(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult(), okResult()},
		resolveResult: &model.TokenResult{Success: true, LongTermToken: "NEW123"},
		callRetriever: true,
	}
	r := &stubRetriever{code: "111111"}
	c := NewSessionController(zap.NewNop(), m, r)

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.NoError(t, err)

	require.Len(t, m.scrapeCreds, 2)
	assert.Equal(t, "stale", m.scrapeCreds[0].OTPLongTermToken)
	assert.Equal(t, "NEW123", m.scrapeCreds[1].OTPLongTermToken)
	assert.Equal(t, 2, state.Attempts)
	assert.Equal(t, "NEW123", state.RenewedToken)
	assert.Equal(t, "NEW123", state.Credentials.OTPLongTermToken)
	assert.Equal(t, 1, r.calls)

	require.True(t, state.Last.Success)
	require.Len(t, state.Last.Accounts, 1)
	assert.Equal(t, "-42.50", state.Last.Accounts[0].Transactions[0].ChargedAmount.StringFixed(2))
}

func TestRun_RenewalUsesIdentityFieldsOnly(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult(), okResult()},
		resolveResult: &model.TokenResult{Success: true, LongTermToken: "NEW123"},
	}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	_, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.NoError(t, err)

	require.Len(t, m.resolveCreds, 1)
	assert.Equal(t, model.Credentials{
		Email:       "user@example.com",
		Password:    "secret",
		PhoneNumber: "+972501234567",
	}, m.resolveCreds[0])
}

// Scenario B: any other failure is returned unchanged.
func TestRun_OtherFailureIsTerminal(t *testing.T) {
	failure := &model.ScrapeResult{Success: false, ErrorType: "InvalidPassword", ErrorMessage: "bad creds"}
	m := &mockEngine{scrapeResults: []*model.ScrapeResult{failure}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)

	assert.Len(t, m.scrapeCreds, 1)
	assert.Empty(t, m.resolveCreds)
	assert.Same(t, failure, state.Last)
	assert.Nil(t, state.Renewal)

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, KindAuthentication, ae.Kind)
	assert.Equal(t, "InvalidPassword", ae.Type)
	assert.Equal(t, "bad creds", ae.Message)
}

func TestRun_RenewalFailureSkipsRetry(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult()},
		resolveResult: &model.TokenResult{Success: false, ErrorType: "INVALID_OTP", ErrorMessage: "wrong code"},
	}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)

	assert.Len(t, m.scrapeCreds, 1)
	assert.Equal(t, KindOtpValidation, KindOf(err))
	assert.Equal(t, "stale", state.Credentials.OTPLongTermToken)
	assert.Empty(t, state.RenewedToken)
	require.NotNil(t, state.Renewal)
	assert.Equal(t, "wrong code", state.Renewal.ErrorMessage)
}

func TestRun_RenewalEngineErrorSkipsRetry(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult()},
		resolveErr:    &engine.RemoteError{Message: "browser crashed"},
	}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	_, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)
	assert.Len(t, m.scrapeCreds, 1)
	assert.Equal(t, KindEngine, KindOf(err))
}

func TestRun_RetryFailureIsReturnedWithoutSecondRenewal(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult(), expiredResult()},
		resolveResult: &model.TokenResult{Success: true, LongTermToken: "NEW123"},
	}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)

	assert.Len(t, m.scrapeCreds, 2)
	assert.Len(t, m.resolveCreds, 1)
	assert.Equal(t, 2, state.Attempts)
	assert.Equal(t, KindTokenExpired, KindOf(err))
	assert.Equal(t, "NEW123", state.RenewedToken)
}

func TestRun_ExpiredSignatureIgnoredForStaticCredentialBanks(t *testing.T) {
	m := &mockEngine{scrapeResults: []*model.ScrapeResult{expiredResult()}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	_, err := c.Run(context.Background(), model.Credentials{Username: "u", Password: "p"},
		model.ScrapeOptions{CompanyID: model.CompanyMax})
	require.Error(t, err)
	assert.Empty(t, m.resolveCreds)
	assert.Equal(t, KindTokenExpired, KindOf(err))
}

func TestRun_EngineErrorIsTransportAndNotRetried(t *testing.T) {
	m := &mockEngine{scrapeErrs: []error{errors.New("dial engine: connection refused")}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Len(t, m.scrapeCreds, 1)
	assert.Nil(t, state.Last)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRun_RetryEngineError(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult()},
		scrapeErrs:    []error{nil, &engine.RemoteError{Message: "page crashed"}},
		resolveResult: &model.TokenResult{Success: true, LongTermToken: "NEW123"},
	}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)
	assert.Equal(t, KindEngine, KindOf(err))
	assert.Equal(t, 2, state.Attempts)
	assert.Equal(t, "NEW123", state.RenewedToken)
}

func TestRenew_RetrieverErrorPropagates(t *testing.T) {
	m := &mockEngine{callRetriever: true}
	r := &stubRetriever{err: errors.New("stdin closed")}
	c := NewSessionController(zap.NewNop(), m, r)

	_, err := c.Renew(context.Background(), baseCreds())
	require.Error(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Contains(t, err.Error(), "stdin closed")
	assert.Equal(t, KindOtpValidation, KindOf(err))
	assert.Equal(t, 5, ExitCode(err))
}

func TestRun_RetrieverFailureDuringRenewalIsOtpValidation(t *testing.T) {
	m := &mockEngine{
		scrapeResults: []*model.ScrapeResult{expiredResult()},
		callRetriever: true,
	}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{err: io.ErrUnexpectedEOF})

	state, err := c.Run(context.Background(), baseCreds(), oneZeroOpts)
	require.Error(t, err)
	assert.Equal(t, KindOtpValidation, KindOf(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, 1, state.Attempts)
	assert.Empty(t, state.RenewedToken)
}

func TestRenew_EmptyTokenIsRejected(t *testing.T) {
	m := &mockEngine{resolveResult: &model.TokenResult{Success: true}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{})

	_, err := c.Renew(context.Background(), baseCreds())
	assert.Equal(t, KindOtpValidation, KindOf(err))
}

// Scenario C: standalone minting never scrapes.
func TestMintToken_TwoStep(t *testing.T) {
	m := &mockEngine{longTermResult: &model.TokenResult{Success: true, LongTermToken: "TOK"}}
	r := &stubRetriever{code: "482913"}
	c := NewSessionController(zap.NewNop(), m, r)

	tok, err := c.MintToken(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "TOK", tok)
	assert.Equal(t, []string{"+15551234567"}, m.triggerPhone)
	assert.Equal(t, []string{"482913"}, m.longTermCodes)
	assert.Empty(t, m.scrapeCreds)
	assert.Empty(t, m.resolveCreds)
}

func TestMintToken_NormalizesIsraeliNumbers(t *testing.T) {
	m := &mockEngine{longTermResult: &model.TokenResult{Success: true, LongTermToken: "TOK"}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{code: "1"})

	_, err := c.MintToken(context.Background(), "0501234567")
	require.NoError(t, err)
	assert.Equal(t, []string{"+972501234567"}, m.triggerPhone)
}

func TestMintToken_TriggerFailureStopsBeforePrompt(t *testing.T) {
	m := &mockEngine{triggerErr: &engine.RemoteError{Status: 400, Message: "invalid phone"}}
	r := &stubRetriever{code: "1"}
	c := NewSessionController(zap.NewNop(), m, r)

	_, err := c.MintToken(context.Background(), "0501234567")
	require.Error(t, err)
	assert.Equal(t, KindEngine, KindOf(err))
	assert.Equal(t, 0, r.calls)
	assert.Empty(t, m.longTermCodes)
}

func TestMintToken_RejectedCode(t *testing.T) {
	m := &mockEngine{longTermResult: &model.TokenResult{Success: false, ErrorType: "GENERIC", ErrorMessage: "bad otp"}}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{code: "000000"})

	_, err := c.MintToken(context.Background(), "+972501234567")
	require.Error(t, err)
	assert.Equal(t, KindOtpValidation, KindOf(err))
	assert.Contains(t, err.Error(), "bad otp")
}

func TestMintToken_PromptFailure(t *testing.T) {
	m := &mockEngine{}
	c := NewSessionController(zap.NewNop(), m, &stubRetriever{err: errors.New("eof")})

	_, err := c.MintToken(context.Background(), "+972501234567")
	require.Error(t, err)
	assert.Equal(t, KindOtpValidation, KindOf(err))
	assert.Empty(t, m.longTermCodes)
}

func TestMintToken_NoRetriever(t *testing.T) {
	m := &mockEngine{}
	c := NewSessionController(zap.NewNop(), m, nil)

	_, err := c.MintToken(context.Background(), "+972501234567")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrRetrieverMissing))
}
