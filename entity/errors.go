package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// GatewayErrorKind classifies a failure reported by an external supplier
// or payment gateway. Each adapter collapses its wire-level failures into
// one of these kinds; the coordinator only looks at the kind.
type GatewayErrorKind string

const (
	// GatewayNotAvailable means the offer is stale or sold out. Terminal
	// for the current offer; re-quote to retry.
	GatewayNotAvailable GatewayErrorKind = "not_available"

	// GatewayRateLimited is retryable after a short pause.
	GatewayRateLimited GatewayErrorKind = "rate_limited"

	// GatewaySupplierDown is retryable with backoff.
	GatewaySupplierDown GatewayErrorKind = "supplier_down"

	// GatewayRejected is a terminal business rejection.
	GatewayRejected GatewayErrorKind = "rejected"

	// GatewayTimeout means the outcome is unknown: the call may or may
	// not have taken effect. Must be resolved by re-querying before any
	// retry or compensation.
	GatewayTimeout GatewayErrorKind = "timeout"
)

type GatewayError struct {
	Kind    GatewayErrorKind
	Op      string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
}

func (e *GatewayError) Retryable() bool {
	return e.Kind == GatewayRateLimited || e.Kind == GatewaySupplierDown
}

func NewGatewayError(kind GatewayErrorKind, op, message string) *GatewayError {
	return &GatewayError{Kind: kind, Op: op, Message: message}
}

// GatewayErrorKindOf extracts the kind from err, or "" when err is not a
// gateway error.
func GatewayErrorKindOf(err error) GatewayErrorKind {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// BookingErrorCode tells the caller whether the failure is worth retrying
// and what, if anything, was already undone.
type BookingErrorCode string

const (
	// CodeVerificationFailed: the offer could not be verified at the
	// requested price. Nothing was charged; retry by re-quoting.
	CodeVerificationFailed BookingErrorCode = "VERIFICATION_FAILED"

	// CodePaymentFailed: the gateway rejected the charge. Terminal, no
	// compensation needed.
	CodePaymentFailed BookingErrorCode = "PAYMENT_FAILED"

	// CodeReservationFailed: a supplier rejected the reservation after
	// the charge went through; the payment was refunded in full.
	CodeReservationFailed BookingErrorCode = "RESERVATION_FAILED"

	// CodePartialCompensation: a refund or supplier cancellation itself
	// failed and was queued for an operator.
	CodePartialCompensation BookingErrorCode = "PARTIAL_COMPENSATION_FAILURE"

	// CodeUnknownOutcome: a gateway call timed out; reconciliation must
	// resolve the payment state before anything else happens.
	CodeUnknownOutcome BookingErrorCode = "UNKNOWN_OUTCOME"

	// CodeConcurrencyConflict: a concurrent operation on the same
	// booking won the version check; retry the whole operation.
	CodeConcurrencyConflict BookingErrorCode = "CONCURRENCY_CONFLICT"

	// CodeInvalidRequest: the request failed local validation before any
	// external call.
	CodeInvalidRequest BookingErrorCode = "INVALID_REQUEST"
)

type BookingError struct {
	Code    BookingErrorCode
	Message string
	Err     error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error { return e.Err }

func (e *BookingError) Retryable() bool {
	return e.Code == CodeConcurrencyConflict
}

func NewBookingError(code BookingErrorCode, message string, err error) *BookingError {
	return &BookingError{Code: code, Message: message, Err: err}
}

// BookingErrorCodeOf extracts the code from err, or "" when err carries
// no booking error.
func BookingErrorCodeOf(err error) BookingErrorCode {
	var bErr *BookingError
	if errors.As(err, &bErr) {
		return bErr.Code
	}
	return ""
}
