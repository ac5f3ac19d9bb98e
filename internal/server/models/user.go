// Package models defines the rows persisted by the repositories and passed
// between services.
package models

import "time"

// User is the canonical identity. Sign-in methods hang off it as Accounts.
type User struct {
	ID                string
	Name              string
	Avatar            string
	SelectedAccountID string
	SessionTokenHash  string
	CreatedAt         time.Time
}

// Account is one sign-in method of a user; (Email, Provider) is unique.
// PasswordHash is empty for providers other than credentials.
type Account struct {
	ID           string
	UserID       string
	Provider     string
	Email        string
	PasswordHash string
	Avatar       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountOtp is a pending credential change awaiting its code.
type AccountOtp struct {
	ID              string
	AccountID       string
	Otp             string
	NewEmail        string
	NewPasswordHash string
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

func (o *AccountOtp) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

type Companion struct {
	ID              string
	UserID          string
	Name            string
	Subject         string
	HelpWith        string
	Voice           string
	Style           string
	DurationMinutes int
	CreatedAt       time.Time
}
