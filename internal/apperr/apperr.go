// Package apperr classifies failures that cross the service boundary.
//
// Every failure the settlement path can surface carries a stable Kind so the
// HTTP layer can map it to a status code without inspecting message text.
// Detail is human readable and must never contain secret material.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidArgument       Kind = "invalid_argument"
	KindWalletNotFound        Kind = "wallet_not_found"
	KindContentNotFound       Kind = "content_not_found"
	KindInvalidCredential     Kind = "invalid_credential"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindTransactionFailed     Kind = "transaction_failed"
	KindUnrecognizedOperation Kind = "unrecognized_operation"
	KindNetworkUnavailable    Kind = "network_unavailable"
	KindDuplicateRequest      Kind = "duplicate_request"
	KindForbidden             Kind = "forbidden"
	KindInternal              Kind = "internal"
)

type Error struct {
	Kind   Kind
	Detail string
	// OutcomeUnknown is set on TransactionFailed when the broadcast timed out
	// and the node may or may not have accepted the transaction.
	OutcomeUnknown bool
	cause          error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap keeps cause reachable through errors.Is/As while Detail stays the
// caller-supplied text. The cause's message is never shown to clients.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), cause: cause}
}

// Unknown builds a TransactionFailed whose outcome could not be determined.
func Unknown(cause error, format string, args ...any) *Error {
	e := Wrap(KindTransactionFailed, cause, format, args...)
	e.OutcomeUnknown = true
	return e
}

// KindOf returns the classified kind of err, or KindInternal when err is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status code used at the HTTP boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument, KindUnrecognizedOperation:
		return http.StatusBadRequest
	case KindInvalidCredential:
		return http.StatusUnprocessableEntity
	case KindWalletNotFound, KindContentNotFound:
		return http.StatusNotFound
	case KindDuplicateRequest:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindForbidden:
		return http.StatusForbidden
	case KindTransactionFailed:
		return http.StatusBadGateway
	case KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
