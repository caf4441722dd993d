package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine failure. The zero value is not a valid kind.
type Kind int

const (
	// Payment-required failures. The claim cannot pay for the request.
	KindMalformedClaim Kind = iota + 1
	KindDestinationMismatch
	KindCurrencyInvalid
	KindInsufficientAuthorization
	KindNoMatchingChannel
	KindExpirableChannel
	KindSignatureInvalid
	KindNotFound

	// KindRateLimited means the channel has too many claims staged.
	KindRateLimited

	// KindInvalidInput means a caller supplied an out-of-range argument.
	KindInvalidInput

	// KindInternalInconsistency means stored state disagrees with itself.
	KindInternalInconsistency

	// KindTimeout means a ledger call or store transaction missed its
	// deadline. It carries no HTTP mapping; the caller decides.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindMalformedClaim:
		return "malformed claim"
	case KindDestinationMismatch:
		return "destination mismatch"
	case KindCurrencyInvalid:
		return "invalid currency"
	case KindInsufficientAuthorization:
		return "insufficient authorization"
	case KindNoMatchingChannel:
		return "no matching channel"
	case KindExpirableChannel:
		return "expirable channel"
	case KindSignatureInvalid:
		return "invalid signature"
	case KindNotFound:
		return "not found"
	case KindRateLimited:
		return "rate limited"
	case KindInvalidInput:
		return "invalid input"
	case KindInternalInconsistency:
		return "internal inconsistency"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("unknown kind %d", int(k))
	}
}

// Error is the engine's failure type. Kind drives control flow and HTTP
// mapping, Detail is human-readable, Err is the wrapped cause when one
// exists.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on kind, so callers can compare against a bare
// &Error{Kind: ...}.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// HTTPStatus maps the kind onto the gateway's response codes. Timeouts are
// not mapped and return 0.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMalformedClaim, KindDestinationMismatch, KindCurrencyInvalid,
		KindInsufficientAuthorization, KindNoMatchingChannel,
		KindExpirableChannel, KindSignatureInvalid, KindNotFound:
		return http.StatusPaymentRequired
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindInternalInconsistency:
		return http.StatusInternalServerError
	default:
		return 0
	}
}

// KindOf extracts the engine kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}
