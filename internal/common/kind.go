package common

import "errors"

// Kind is the coarse error category a transport maps to a response code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindAuth
	KindForbidden
	KindInsufficientFunds
	KindExpired
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindExpired:
		return "expired"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Classify maps err onto the taxonomy. Unknown errors are internal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAlreadyLinked), errors.Is(err, ErrAccountExists):
		return KindConflict
	case errors.Is(err, ErrorNotFound), errors.Is(err, ErrNothingToResend):
		return KindNotFound
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrBadCredential), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidOtp), errors.Is(err, ErrorUnauthorized):
		return KindAuth
	case errors.Is(err, ErrNotEntitled):
		return KindForbidden
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrChallengeExpired):
		return KindExpired
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// PublicMessage returns text safe to show a caller. Internal failures
// collapse to a generic message; storage detail is only logged.
func PublicMessage(err error) string {
	switch Classify(err) {
	case KindInternal:
		return ErrorInternal.Error()
	case KindTransient:
		return ErrTransient.Error()
	case KindConflict:
		if errors.Is(err, ErrAlreadyLinked) {
			return ErrAlreadyLinked.Error()
		}
		return ErrAccountExists.Error()
	default:
		return err.Error()
	}
}
