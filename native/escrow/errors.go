package escrow

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine matches exactly one of them
// through errors.Is, which is how transports decide how to report it.
var (
	// ErrValidation marks bad input; the caller must fix it and retry fresh.
	ErrValidation = errors.New("escrow: validation error")
	// ErrAuthorization marks a caller that may not perform the operation.
	ErrAuthorization = errors.New("escrow: authorization error")
	// ErrState marks an operation that is invalid for the current status,
	// including one whose effect already happened.
	ErrState = errors.New("escrow: state error")
	// ErrLedger marks a transfer the ledger refused; the record is unchanged.
	ErrLedger = errors.New("escrow: ledger error")
)

// Error is a classified escrow failure. Two errors are equal under errors.Is
// when their codes match, so detailed messages still match the sentinels.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "escrow: " + e.Message
}

// Unwrap exposes the kind so errors.Is(err, ErrState) works.
func (e *Error) Unwrap() error { return e.Kind }

// Is matches other *Error values by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// withf returns a copy of e carrying a more specific message.
func (e *Error) withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidAmount      = &Error{Kind: ErrValidation, Code: "invalid_amount", Message: "amount must be greater than zero"}
	ErrDescriptionTooLong = &Error{Kind: ErrValidation, Code: "description_too_long", Message: "order details exceed maximum length"}
	ErrInvalidParty       = &Error{Kind: ErrValidation, Code: "invalid_party", Message: "buyer and seller must be distinct non-zero identities"}
	ErrUnauthorized       = &Error{Kind: ErrAuthorization, Code: "unauthorized", Message: "caller is not authorized for this operation"}
	ErrWrongState         = &Error{Kind: ErrState, Code: "wrong_state", Message: "operation not permitted in current status"}
	ErrZeroAmount         = &Error{Kind: ErrState, Code: "zero_amount", Message: "escrow holds no funds"}
	ErrAlreadyWithdrawn   = &Error{Kind: ErrState, Code: "already_withdrawn", Message: "funds have already been withdrawn"}
	ErrDuplicateKey       = &Error{Kind: ErrState, Code: "duplicate_key", Message: "escrow already exists"}
	ErrNotFound           = &Error{Kind: ErrState, Code: "not_found", Message: "escrow not found"}
	ErrInsufficientFunds  = &Error{Kind: ErrLedger, Code: "insufficient_funds", Message: "insufficient funds"}
	ErrBalanceOverflow    = &Error{Kind: ErrLedger, Code: "balance_overflow", Message: "balance overflow"}
	ErrTransferFailed     = &Error{Kind: ErrLedger, Code: "transfer_failed", Message: "fund transfer failed"}
)

// KindOf returns the kind of a classified error, or nil for foreign errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrState, ErrLedger} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// CodeOf returns the machine readable code of a classified error, or
// "internal" for anything else.
func CodeOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return "internal"
}
