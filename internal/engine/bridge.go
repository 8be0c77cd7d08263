package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/httpclient"
	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/internal/rate"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// BridgeConfig locates the engine sidecar.
type BridgeConfig struct {
	WSURL       string // session socket, e.g. ws://localhost:7300/v1/sessions
	HTTPURL     string // two-factor endpoints, e.g. http://localhost:7300
	HTTPTimeout time.Duration
	RetryMax    int // extra websocket dial attempts; two-factor POSTs are sent once
}

// Bridge implements Client against an engine sidecar. Interactive operations run
// over a websocket session so the engine can ask for an OTP mid-login; the
// stateless two-factor endpoints go over HTTP.
type Bridge struct {
	logger  *zap.Logger
	wsURL   string
	httpURL string
	dialer  *websocket.Dialer
	dialMax int
	exec    *httpclient.Executor

	mu               sync.Mutex
	twoFactorSession string
}

// NewBridge creates a bridge. rateMgr may be nil to disable rate limiting.
func NewBridge(logger *zap.Logger, cfg BridgeConfig, rateMgr *rate.Manager) *Bridge {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return &Bridge{
		logger:  logger,
		wsURL:   cfg.WSURL,
		httpURL: strings.TrimRight(cfg.HTTPURL, "/"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		dialMax: cfg.RetryMax,
		// A resent trigger is another SMS and a resent code may hit a consumed session.
		exec: httpclient.New(logger, rateMgr, httpClient, 0, "engine", decodeRemoteError),
	}
}

// Scrape runs one scrape session. The result is returned as the engine sent it.
func (b *Bridge) Scrape(ctx context.Context, opts model.ScrapeOptions, creds model.Credentials) (*model.ScrapeResult, error) {
	defer metrics.ObserveDuration(metrics.EngineRequestDuration, time.Now(), "scrape")

	var result *model.ScrapeResult
	err := b.session(ctx, Frame{Type: FrameScrape, Options: &opts, Credentials: &creds}, nil,
		func(f Frame) (bool, error) {
			if f.Type != FrameResult {
				return false, nil
			}
			if f.Result == nil {
				return true, errors.New("engine sent an empty result frame")
			}
			result = f.Result
			return true, nil
		})
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", opts.CompanyID, err)
	}
	return result, nil
}

// ResolveOtpToken runs a login session that ends in a long-term token. retriever
// is invoked each time the engine sends an otp_required frame.
func (b *Bridge) ResolveOtpToken(ctx context.Context, creds model.Credentials, retriever OtpRetriever) (*model.TokenResult, error) {
	defer metrics.ObserveDuration(metrics.EngineRequestDuration, time.Now(), "resolve_otp_token")

	opts := model.ScrapeOptions{CompanyID: model.CompanyOneZero}
	var token *model.TokenResult
	err := b.session(ctx, Frame{Type: FrameResolveOtpToken, Options: &opts, Credentials: &creds}, retriever,
		func(f Frame) (bool, error) {
			if f.Type != FrameToken {
				return false, nil
			}
			if f.Token == nil {
				return true, errors.New("engine sent an empty token frame")
			}
			token = f.Token
			return true, nil
		})
	if err != nil {
		return nil, fmt.Errorf("resolve otp token: %w", err)
	}
	return token, nil
}

// TriggerTwoFactorAuth asks the engine to send an OTP and remembers the engine
// session the code belongs to.
func (b *Bridge) TriggerTwoFactorAuth(ctx context.Context, phoneNumber string) error {
	defer metrics.ObserveDuration(metrics.EngineRequestDuration, time.Now(), "trigger_two_factor")

	var resp triggerResponse
	body := triggerRequest{CompanyID: model.CompanyOneZero, PhoneNumber: phoneNumber}
	if err := b.postJSON(ctx, "/v1/two-factor/trigger", body, &resp); err != nil {
		return fmt.Errorf("trigger two-factor auth: %w", err)
	}
	if resp.SessionID == "" {
		return fmt.Errorf("trigger two-factor auth: %w", &RemoteError{Message: "engine returned no session id"})
	}

	b.mu.Lock()
	b.twoFactorSession = resp.SessionID
	b.mu.Unlock()

	b.logger.Info("engine.two_factor_triggered", zap.String("session_id", resp.SessionID))
	return nil
}

// GetLongTermTwoFactorToken exchanges otpCode for a long-term token on the
// session opened by TriggerTwoFactorAuth. The session is consumed either way.
func (b *Bridge) GetLongTermTwoFactorToken(ctx context.Context, otpCode string) (*model.TokenResult, error) {
	defer metrics.ObserveDuration(metrics.EngineRequestDuration, time.Now(), "long_term_token")

	b.mu.Lock()
	sessionID := b.twoFactorSession
	b.twoFactorSession = ""
	b.mu.Unlock()

	if sessionID == "" {
		return nil, ErrNoTwoFactorSession
	}

	var token model.TokenResult
	body := longTermTokenRequest{SessionID: sessionID, OtpCode: otpCode}
	if err := b.postJSON(ctx, "/v1/two-factor/long-term-token", body, &token); err != nil {
		return nil, fmt.Errorf("get long-term token: %w", err)
	}
	return &token, nil
}

func (b *Bridge) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.httpURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	return b.exec.DoJSON(ctx, req, model.CompanyOneZero.Key(), out)
}

// session opens a websocket, sends first, then feeds every non-control frame to
// onFrame until it reports done. log, error and otp_required frames are handled here.
func (b *Bridge) session(ctx context.Context, first Frame, retriever OtpRetriever, onFrame func(Frame) (bool, error)) error {
	conn, err := b.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	// Unblock ReadJSON when the caller gives up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	b.logger.Debug("engine.session_started", zap.String("frame", string(first.Type)))
	if err := conn.WriteJSON(first); err != nil {
		return fmt.Errorf("send %s: %w", first.Type, err)
	}

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read engine frame: %w", err)
		}

		switch f.Type {
		case FrameLog:
			b.logger.Debug("engine.log", zap.String("message", f.Message))
		case FrameError:
			return &RemoteError{Message: f.Message}
		case FrameOtpRequired:
			if retriever == nil {
				return ErrRetrieverMissing
			}
			b.logger.Info("engine.otp_requested")
			code, err := retriever.GetCode(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrRetrieverFailed, err)
			}
			if err := conn.WriteJSON(Frame{Type: FrameOtpCode, Code: code}); err != nil {
				return fmt.Errorf("send otp code: %w", err)
			}
		default:
			done, err := onFrame(f)
			if err != nil {
				return err
			}
			if done {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
		}
	}
}

// dial connects to the session socket, retrying failed handshakes up to dialMax
// times. Nothing has been sent before a handshake succeeds.
func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt <= b.dialMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(httpclient.Backoff(attempt - 1)):
			}
		}
		conn, _, err := b.dialer.DialContext(ctx, b.wsURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		b.logger.Warn("engine.dial_failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, fmt.Errorf("dial engine: %w", lastErr)
}

func decodeRemoteError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return &RemoteError{Status: status, Message: er.Error}
	}
	return &RemoteError{Status: status, Message: strings.TrimSpace(string(body))}
}
