package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

type FeatureType string

const (
	FeatureBoolean FeatureType = "boolean"
	FeatureNumber  FeatureType = "number"
	FeatureString  FeatureType = "string"
)

type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Subscription is a catalog plan.
type Subscription struct {
	ID          string
	Name        string
	Description string
}

type Feature struct {
	ID          string
	Name        string
	Type        FeatureType
	Description string
}

// SubscriptionFeature is a plan's raw value for one feature, joined with
// the feature's name and declared type.
type SubscriptionFeature struct {
	SubscriptionID string
	FeatureID      string
	Name           string
	Type           FeatureType
	Value          string
}

type SubscriptionPrice struct {
	ID              string
	SubscriptionID  string
	PriceCents      int64
	Currency        string
	Interval        BillingInterval
	ExternalPriceID string
	IsActive        bool
}

// UserSubscription is one period of a plan held by a user. Rows are never
// deleted; only Status changes.
type UserSubscription struct {
	ID               string
	UserID           string
	SubscriptionID   string
	SubscriptionName string
	Status           SubscriptionStatus
	StartedAt        time.Time
	ExpiresAt        time.Time
	ExternalID       string
}
