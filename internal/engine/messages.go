package engine

import (
	"errors"
	"fmt"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// FrameType tags a websocket frame exchanged with the engine sidecar.
type FrameType string

const (
	// client → engine
	FrameScrape          FrameType = "scrape"
	FrameResolveOtpToken FrameType = "resolve_otp_token"
	FrameOtpCode         FrameType = "otp_code"

	// engine → client
	FrameOtpRequired FrameType = "otp_required"
	FrameResult      FrameType = "result"
	FrameToken       FrameType = "token"
	FrameLog         FrameType = "log"
	FrameError       FrameType = "error"
)

// Frame is the single JSON message shape on the session socket.
type Frame struct {
	Type        FrameType            `json:"type"`
	Options     *model.ScrapeOptions `json:"options,omitempty"`
	Credentials *model.Credentials   `json:"credentials,omitempty"`
	Code        string               `json:"code,omitempty"`
	Message     string               `json:"message,omitempty"`
	Result      *model.ScrapeResult  `json:"result,omitempty"`
	Token       *model.TokenResult   `json:"token,omitempty"`
}

type triggerRequest struct {
	CompanyID   model.CompanyID `json:"companyId"`
	PhoneNumber string          `json:"phoneNumber"`
}

type triggerResponse struct {
	SessionID string `json:"sessionId"`
}

type longTermTokenRequest struct {
	SessionID string `json:"sessionId"`
	OtpCode   string `json:"otpCode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ErrRetrieverMissing is returned when the engine asks for an OTP during an
// operation that was started without a retriever.
var ErrRetrieverMissing = errors.New("engine requested an OTP but no retriever was supplied")

// ErrRetrieverFailed wraps an error from the OTP retriever during a session.
var ErrRetrieverFailed = errors.New("otp retriever failed")

// ErrNoTwoFactorSession is returned by GetLongTermTwoFactorToken when
// TriggerTwoFactorAuth has not been called first.
var ErrNoTwoFactorSession = errors.New("no pending two-factor session; trigger two-factor auth first")

// RemoteError is an engine-internal failure reported by the sidecar itself
// (as opposed to a failed login, which arrives as an unsuccessful result).
type RemoteError struct {
	Status  int // HTTP status, 0 for websocket sessions
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("engine error (%d): %s", e.Status, e.Message)
	}
	return "engine error: " + e.Message
}
