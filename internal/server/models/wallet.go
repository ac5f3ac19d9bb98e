package models

import "time"

type TransactionType string

const (
	TransactionTopUp        TransactionType = "top_up"
	TransactionSubscription TransactionType = "subscription"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

const (
	PaymentMethodTopUp        = "top_up"
	PaymentMethodSubscription = "subscription"
	PaymentMethodExternal     = "external"
)

// Wallet balance is kept in minor currency units and never goes negative.
type Wallet struct {
	ID        string
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// WalletTransaction is a signed ledger entry: positive for credits.
type WalletTransaction struct {
	ID        string
	WalletID  string
	Amount    int64
	Type      TransactionType
	CreatedAt time.Time
}

type Payment struct {
	ID             string
	UserID         string
	Amount         int64
	Currency       string
	Status         PaymentStatus
	Method         string
	SubscriptionID string
	ExternalRef    string
	CreatedAt      time.Time
}
