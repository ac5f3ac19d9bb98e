package models

import "time"

// Reminder is a scheduled renewal notice for one user subscription.
type Reminder struct {
	ID                 string
	DueAt              time.Time
	UserSubscriptionID string
	Payload            ReminderPayload
	CreatedAt          time.Time
}

// ReminderPayload is what the mail template needs, captured at scheduling time.
type ReminderPayload struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PlanName   string    `json:"planName"`
	PriceCents int64     `json:"priceCents"`
	Currency   string    `json:"currency"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
