// Package common defines shared constants and sentinel errors used across
// the subkeeper server. Callers should use errors.Is to match these values
// and Classify to map them onto the error taxonomy exposed to clients.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors (caller input).
	ErrValidation = errors.New("validation error")

	// Identity conflicts. Messages stay generic so they never reveal which
	// provider already owns an email.
	ErrAlreadyLinked = errors.New("account already linked")
	ErrAccountExists = errors.New("account already exists")

	// Not-found refinements. Each wraps ErrorNotFound.
	ErrUserNotFound    = notFound("user not found")
	ErrAccountNotFound = notFound("account not found")
	ErrWalletNotFound  = notFound("wallet not found")
	ErrPriceNotFound   = notFound("subscription price not found")
	ErrPlanNotFound    = notFound("subscription plan not found")

	// Auth errors.
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrBadCredential      = errors.New("current password is incorrect")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidOtp         = errors.New("invalid otp")

	// Entitlement denial. Services wrap it with the human-readable reason.
	ErrNotEntitled = errors.New("not entitled")

	// Ledger errors.
	ErrInsufficientFunds = errors.New("insufficient balance in wallet")

	// OTP lifecycle errors.
	ErrChallengeExpired = errors.New("otp expired")
	ErrNothingToResend  = errors.New("nothing to resend")

	// Dependency failures (mail, gateway). Logged, never unwind committed work.
	ErrTransient = errors.New("temporary dependency failure")
)

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return ErrorNotFound }
