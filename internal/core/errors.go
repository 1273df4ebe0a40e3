package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can translate it without string matching.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is the result-carrying error returned by the ledger.
// NotFound deliberately covers both "absent" and "owned by someone else".
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidAmount       = &Error{Kind: KindValidation, Message: "amount must be greater than zero"}
	ErrAmountOutOfRange    = &Error{Kind: KindValidation, Message: "amount must be below 1000000000000 with at most 20 decimals"}
	ErrEmptyDescription    = &Error{Kind: KindValidation, Message: "description cannot be empty"}
	ErrEmptyCategory       = &Error{Kind: KindValidation, Message: "category cannot be empty"}
	ErrInvalidType         = &Error{Kind: KindValidation, Message: "type must be income, expense or transfer"}
	ErrInvalidDate         = &Error{Kind: KindValidation, Message: "date cannot be zero"}
	ErrTargetExclusive     = &Error{Kind: KindValidation, Message: "must specify either account_id or credit_card_id, but not both"}
	ErrTransferShape       = &Error{Kind: KindValidation, Message: "transfer must have both account_id and to_account_id and no credit_card_id"}
	ErrToAccountNotAllowed = &Error{Kind: KindValidation, Message: "to_account_id is only valid for transfers"}
	ErrSameAccount         = &Error{Kind: KindValidation, Message: "cannot transfer to the same account"}
	ErrInsufficientFunds   = &Error{Kind: KindValidation, Message: "insufficient balance"}
	ErrInvalidPeriod       = &Error{Kind: KindValidation, Message: "invalid month or year"}
)

// KindOf reports the kind of err. Errors that carry no kind are internal failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure (storage down, driver error) with a message.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}
