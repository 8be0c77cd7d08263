package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Checker-Finance/bank-scrapers/internal/engine"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// Kind discriminates why a run ended without transactions.
type Kind int

const (
	KindUnknown Kind = iota
	KindUsage
	KindAuthentication
	KindTokenExpired
	KindOtpValidation
	KindEngine
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindAuthentication:
		return "authentication"
	case KindTokenExpired:
		return "token_expired"
	case KindOtpValidation:
		return "otp_validation"
	case KindEngine:
		return "engine"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ExitCode is the process exit status for a failure of this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindUsage:
		return 2
	case KindAuthentication:
		return 3
	case KindTokenExpired:
		return 4
	case KindOtpValidation:
		return 5
	case KindEngine:
		return 6
	case KindTransport:
		return 7
	default:
		return 1
	}
}

// Error is a terminal run failure. Type and Message carry the engine's
// errorType/errorMessage verbatim when the failure came from a result.
type Error struct {
	Kind    Kind
	Op      string
	Type    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Type != "" {
		fmt.Fprintf(&b, " [%s]", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// ExitCode maps err to a process exit status. nil is success.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}

// UsageError marks a command-line argument problem.
func UsageError(op string, err error) error {
	return &Error{Kind: KindUsage, Op: op, Err: err}
}

// ClassifyErrorType maps an engine errorType to a Kind. The token-expired
// signature is checked separately by IsTokenExpired.
func ClassifyErrorType(errorType string) Kind {
	norm := strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(errorType))
	switch norm {
	case "INVALIDPASSWORD", "CHANGEPASSWORD", "ACCOUNTBLOCKED":
		return KindAuthentication
	case "TIMEOUT":
		return KindTransport
	default:
		return KindEngine
	}
}

func scrapeFailure(op string, r *model.ScrapeResult) *Error {
	kind := ClassifyErrorType(r.ErrorType)
	if IsTokenExpired(r) {
		kind = KindTokenExpired
	}
	return &Error{Kind: kind, Op: op, Type: r.ErrorType, Message: r.ErrorMessage}
}

func renewalFailure(op string, r *model.TokenResult) *Error {
	return &Error{Kind: KindOtpValidation, Op: op, Type: r.ErrorType, Message: r.ErrorMessage}
}

// engineFailure wraps an error returned by the engine client itself.
func engineFailure(op string, err error) *Error {
	if errors.Is(err, engine.ErrRetrieverFailed) {
		return &Error{Kind: KindOtpValidation, Op: op, Err: err}
	}
	var re *engine.RemoteError
	if errors.As(err, &re) || errors.Is(err, engine.ErrRetrieverMissing) || errors.Is(err, engine.ErrNoTwoFactorSession) {
		return &Error{Kind: KindEngine, Op: op, Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}
