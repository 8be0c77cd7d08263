package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/engine"
	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
	"github.com/Checker-Finance/bank-scrapers/pkg/utils"
)

// SessionController runs scrapes and renews an expired long-term token at most
// once per run. Engine calls are issued strictly one after another.
type SessionController struct {
	logger    *zap.Logger
	client    engine.Client
	retriever engine.OtpRetriever
}

// NewSessionController wires a controller. retriever supplies OTP codes during
// renewal and standalone minting.
func NewSessionController(logger *zap.Logger, client engine.Client, retriever engine.OtpRetriever) *SessionController {
	return &SessionController{
		logger:    logger,
		client:    client,
		retriever: retriever,
	}
}

// Run scrapes with creds. If the first attempt fails because the long-term
// token expired, the token is renewed through the OTP flow and the scrape is
// retried exactly once with the new token.
//
// The returned state is never nil. On failure the error is an *Error and
// state.Last holds the engine's last result unchanged.
func (c *SessionController) Run(ctx context.Context, creds model.Credentials, opts model.ScrapeOptions) (*model.RunState, error) {
	state := &model.RunState{Credentials: creds}
	company := string(opts.CompanyID)

	c.logger.Info("auth.run_started",
		zap.String("company", company),
		zap.Time("start_date", opts.StartDate))

	res, err := c.scrape(ctx, state, opts)
	if err != nil {
		return state, engineFailure("scrape", err)
	}
	if res.Success {
		if opts.CompanyID.SupportsLongTermToken() {
			c.logger.Info("auth.token_valid", zap.String("company", company))
		}
		return state, nil
	}

	if !IsTokenExpired(res) || !opts.CompanyID.SupportsLongTermToken() {
		c.logger.Warn("auth.scrape_failed",
			zap.String("company", company),
			zap.String("error_type", res.ErrorType),
			zap.String("error_message", res.ErrorMessage))
		return state, scrapeFailure("scrape", res)
	}

	c.logger.Info("auth.token_expired", zap.String("company", company))
	tok, err := c.Renew(ctx, state.Credentials)
	state.Renewal = tok
	if err != nil {
		return state, err
	}

	state.Credentials.OTPLongTermToken = tok.LongTermToken
	state.RenewedToken = tok.LongTermToken
	c.logger.Info("auth.token_renewed",
		zap.String("company", company),
		zap.String("token", utils.MaskSecret(tok.LongTermToken)))

	res, err = c.scrape(ctx, state, opts)
	if err != nil {
		return state, engineFailure("retry scrape", err)
	}
	if !res.Success {
		c.logger.Warn("auth.retry_failed",
			zap.String("company", company),
			zap.String("error_type", res.ErrorType),
			zap.String("error_message", res.ErrorMessage))
		return state, scrapeFailure("retry scrape", res)
	}
	return state, nil
}

func (c *SessionController) scrape(ctx context.Context, state *model.RunState, opts model.ScrapeOptions) (*model.ScrapeResult, error) {
	state.Attempts++
	res, err := c.client.Scrape(ctx, opts, state.Credentials)
	if err != nil {
		metrics.IncScrapeAttempt(string(opts.CompanyID), "error")
		metrics.IncError("engine", "scrape")
		c.logger.Error("auth.engine_failed", zap.String("company", string(opts.CompanyID)), zap.Error(err))
		return nil, err
	}
	if res == nil {
		return nil, &engine.RemoteError{Message: "no scrape result"}
	}
	state.Last = res
	if res.Success {
		metrics.IncScrapeAttempt(string(opts.CompanyID), "success")
	} else {
		metrics.IncScrapeAttempt(string(opts.CompanyID), "failure")
	}
	return res, nil
}

// Renew mints a new long-term token from the identity fields of base. The
// engine calls the controller's retriever when it reaches the OTP step. A
// rejected code is terminal.
func (c *SessionController) Renew(ctx context.Context, base model.Credentials) (*model.TokenResult, error) {
	renewal := model.Credentials{
		Email:       base.Email,
		Password:    base.Password,
		PhoneNumber: base.PhoneNumber,
	}

	tok, err := c.client.ResolveOtpToken(ctx, renewal, c.retriever)
	if err != nil {
		metrics.IncTokenRenewal("resolve", "error")
		c.logger.Error("auth.renewal_failed", zap.Error(err))
		return nil, engineFailure("renew", err)
	}
	if tok == nil {
		metrics.IncTokenRenewal("resolve", "error")
		return nil, &Error{Kind: KindEngine, Op: "renew", Message: "engine returned no token result"}
	}
	if !tok.Success || tok.LongTermToken == "" {
		metrics.IncTokenRenewal("resolve", "failure")
		c.logger.Warn("auth.renewal_rejected",
			zap.String("error_type", tok.ErrorType),
			zap.String("error_message", tok.ErrorMessage))
		if tok.Success {
			return tok, &Error{Kind: KindOtpValidation, Op: "renew", Message: "engine returned an empty long-term token"}
		}
		return tok, renewalFailure("renew", tok)
	}

	metrics.IncTokenRenewal("resolve", "success")
	return tok, nil
}

// MintToken obtains a long-term token when none exists yet: it triggers an SMS
// to phone, reads the code from the retriever and exchanges it. It never scrapes.
func (c *SessionController) MintToken(ctx context.Context, phone string) (string, error) {
	normalized := NormalizePhoneNumber(phone)
	c.logger.Info("auth.mint_started", zap.String("phone", utils.MaskSecret(normalized)))

	if err := c.client.TriggerTwoFactorAuth(ctx, normalized); err != nil {
		metrics.IncTokenRenewal("mint", "error")
		return "", engineFailure("trigger two-factor", err)
	}

	if c.retriever == nil {
		return "", &Error{Kind: KindEngine, Op: "read otp", Err: engine.ErrRetrieverMissing}
	}
	code, err := c.retriever.GetCode(ctx)
	if err != nil {
		metrics.IncTokenRenewal("mint", "error")
		return "", &Error{Kind: KindOtpValidation, Op: "read otp", Err: err}
	}

	tok, err := c.client.GetLongTermTwoFactorToken(ctx, code)
	if err != nil {
		metrics.IncTokenRenewal("mint", "error")
		return "", engineFailure("long-term token", err)
	}
	if tok == nil || !tok.Success || tok.LongTermToken == "" {
		metrics.IncTokenRenewal("mint", "failure")
		if tok == nil || tok.Success {
			return "", &Error{Kind: KindOtpValidation, Op: "long-term token", Message: "engine returned no long-term token"}
		}
		return "", renewalFailure("long-term token", tok)
	}

	metrics.IncTokenRenewal("mint", "success")
	c.logger.Info("auth.token_minted", zap.String("token", utils.MaskSecret(tok.LongTermToken)))
	return tok.LongTermToken, nil
}
