package httpapi

import (
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
)

type sessionResponse struct {
	UserID    string `json:"userId"`
	AccountID string `json:"accountId"`
	IsNewUser bool   `json:"isNewUser"`
	Token     string `json:"token"`
}

func toSession(r *services.ResolveResult) sessionResponse {
	return sessionResponse{UserID: r.UserID, AccountID: r.AccountID, IsNewUser: r.IsNewUser, Token: r.Token}
}

type profileResponse struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	AccountID string    `json:"accountId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toProfile(u *models.User, a *models.Account) profileResponse {
	p := profileResponse{UserID: u.ID, Name: u.Name, Avatar: u.Avatar, CreatedAt: u.CreatedAt}
	if a != nil {
		p.AccountID, p.Email, p.Provider = a.ID, a.Email, a.Provider
	}
	return p
}

type companionResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Subject         string    `json:"subject,omitempty"`
	HelpWith        string    `json:"helpWith,omitempty"`
	Voice           string    `json:"voice"`
	Style           string    `json:"style,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toCompanion(c models.Companion) companionResponse {
	return companionResponse{
		ID:              c.ID,
		Name:            c.Name,
		Subject:         c.Subject,
		HelpWith:        c.HelpWith,
		Voice:           c.Voice,
		Style:           c.Style,
		DurationMinutes: c.DurationMinutes,
		CreatedAt:       c.CreatedAt,
	}
}

type walletResponse struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toWallet(w *models.Wallet) walletResponse {
	return walletResponse{ID: w.ID, Balance: w.Balance, UpdatedAt: w.UpdatedAt}
}

type transactionResponse struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

type paymentResponse struct {
	ID             string    `json:"id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	Method         string    `json:"method"`
	SubscriptionID string    `json:"subscriptionId,omitempty"`
	ExternalRef    string    `json:"externalRef,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toPayment(p *models.Payment) *paymentResponse {
	if p == nil {
		return nil
	}
	return &paymentResponse{
		ID:             p.ID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Method:         p.Method,
		SubscriptionID: p.SubscriptionID,
		ExternalRef:    p.ExternalRef,
		CreatedAt:      p.CreatedAt,
	}
}

type featureResponse struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

func toFeatures(rows []models.SubscriptionFeature) []featureResponse {
	out := make([]featureResponse, 0, len(rows))
	for _, f := range rows {
		out = append(out, featureResponse{Name: f.Name, Type: string(f.Type), Value: f.Value})
	}
	return out
}

type userSubscriptionResponse struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscriptionId"`
	Name           string            `json:"name"`
	Status         string            `json:"status"`
	Active         bool              `json:"active"`
	StartedAt      time.Time         `json:"startedAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Features       []featureResponse `json:"features,omitempty"`
}

func toUserSubscription(us *models.UserSubscription) *userSubscriptionResponse {
	if us == nil {
		return nil
	}
	return &userSubscriptionResponse{
		ID:             us.ID,
		SubscriptionID: us.SubscriptionID,
		Name:           us.SubscriptionName,
		Status:         string(us.Status),
		StartedAt:      us.StartedAt,
		ExpiresAt:      us.ExpiresAt,
	}
}

type priceResponse struct {
	ID         string `json:"id"`
	PriceCents int64  `json:"priceCents"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval"`
}

type planResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Features    []featureResponse `json:"features"`
	Prices      []priceResponse   `json:"prices"`
}

func toPlan(v services.PlanView) planResponse {
	p := planResponse{
		ID:          v.Plan.ID,
		Name:        v.Plan.Name,
		Description: v.Plan.Description,
		Features:    toFeatures(v.Features),
		Prices:      make([]priceResponse, 0, len(v.Prices)),
	}
	for _, pr := range v.Prices {
		p.Prices = append(p.Prices, priceResponse{ID: pr.ID, PriceCents: pr.PriceCents, Currency: pr.Currency, Interval: string(pr.Interval)})
	}
	return p
}

type challengeResponse struct {
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func toChallenge(r *services.ChallengeResult) challengeResponse {
	out := challengeResponse{Status: string(r.Status)}
	if !r.ExpiresAt.IsZero() {
		out.ExpiresAt = &r.ExpiresAt
	}
	return out
}
