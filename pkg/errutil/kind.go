package errutil

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags a purchase failure. The set is closed; handlers switch on it.
type Kind string

const (
	KindExecutionFailed     Kind = "ExecutionFailed"
	KindWrongSigner         Kind = "WrongSigner"
	KindNoTransferFound     Kind = "NoTransferFound"
	KindAmountMismatch      Kind = "AmountMismatch"
	KindUnsupportedCurrency Kind = "UnsupportedCurrency"
	KindUnavailable         Kind = "Unavailable"
	KindLimitExceeded       Kind = "LimitExceeded"
	KindConflict            Kind = "Conflict"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindNotFound            Kind = "NotFound"
	KindCampaignClosed      Kind = "CampaignClosed"
	KindSignatureReused     Kind = "SignatureReused"
	KindRateLimited         Kind = "RateLimited"
)

// DefaultRetryAfter is the wait suggested to clients for transient failures.
const DefaultRetryAfter = 30 * time.Second

type Error struct {
	Kind       Kind
	Detail     string
	RetryAfter time.Duration
	Details    []Detail
	Err        error
}

type KindOption func(*Error)

func WithRetryAfter(d time.Duration) KindOption {
	return func(e *Error) { e.RetryAfter = d }
}

func WithCause(err error) KindOption {
	return func(e *Error) { e.Err = err }
}

func WithDetail(field, message string) KindOption {
	return func(e *Error) { e.Details = append(e.Details, Detail{Field: field, Message: message}) }
}

func Fail(kind Kind, detail string, opts ...KindOption) *Error {
	e := &Error{Kind: kind, Detail: detail}
	for _, opt := range opts {
		opt(e)
	}
	if e.RetryAfter == 0 && e.Retryable() {
		e.RetryAfter = DefaultRetryAfter
	}
	return e
}

func Failf(kind Kind, format string, args ...any) *Error {
	return Fail(kind, fmt.Sprintf(format, args...))
}

// AmountMismatch keeps both sides of the comparison for diagnostics.
func AmountMismatch(expectedUSD, actualUSD string) *Error {
	return Fail(KindAmountMismatch,
		fmt.Sprintf("paid %s USD, expected %s USD", actualUSD, expectedUSD),
		WithDetail("expected_usd", expectedUSD),
		WithDetail("actual_usd", actualUSD),
	)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNoTransferFound, KindUnavailable, KindRateLimited:
		return true
	case KindExecutionFailed, KindWrongSigner, KindAmountMismatch, KindUnsupportedCurrency,
		KindLimitExceeded, KindConflict, KindInvalidRequest, KindNotFound,
		KindCampaignClosed, KindSignatureReused:
		return false
	default:
		return false
	}
}

func (e *Error) Status() CoreStatus {
	switch e.Kind {
	case KindInvalidRequest, KindUnsupportedCurrency:
		return StatusBadRequest
	case KindNotFound:
		return StatusNotFound
	case KindNoTransferFound, KindConflict, KindSignatureReused:
		return StatusConflict
	case KindExecutionFailed, KindWrongSigner, KindAmountMismatch, KindLimitExceeded, KindCampaignClosed:
		return StatusUnprocessableEntity
	case KindRateLimited:
		return StatusTooManyRequests
	case KindUnavailable:
		return StatusServiceUnavailable
	default:
		return StatusInternal
	}
}

// DetailValue looks up a diagnostic value by field name.
func (e *Error) DetailValue(field string) (string, bool) {
	for _, d := range e.Details {
		if d.Field == field {
			return d.Message, true
		}
	}
	return "", false
}

// KindOf reports the kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
