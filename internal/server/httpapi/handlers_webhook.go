package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
)

// WebhookSecretHeader carries the shared secret the payment gateway sends.
const WebhookSecretHeader = "X-Webhook-Secret"

type paymentNotification struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId"`
	Interval       string `json:"interval"`
	AmountTotal    int64  `json:"amountTotal"`
	Currency       string `json:"currency"`
	ExternalRef    string `json:"externalRef"`
}

func (s *Server) webhookAuthorized(r *http.Request) bool {
	if s.opts.WebhookSecret == "" {
		return false
	}
	got := r.Header.Get(WebhookSecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.WebhookSecret)) == 1
}

// handlePaymentWebhook activates a subscription paid through the gateway.
// Redelivery of the same notification answers 200 without side effects.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.webhookAuthorized(r) {
		writeError(w, common.ErrorUnauthorized)
		return
	}
	var n paymentNotification
	if err := decodeJSON(w, r, &n); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Payments.ActivateExternalPayment(r.Context(), services.Notification{
		UserID:         n.UserID,
		SubscriptionID: n.SubscriptionID,
		Interval:       models.BillingInterval(n.Interval),
		AmountTotal:    n.AmountTotal,
		Currency:       n.Currency,
		ExternalRef:    n.ExternalRef,
	})
	if err != nil {
		s.log.Warn(r.Context(), "payment webhook rejected", "external_ref", n.ExternalRef, "error", err)
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"duplicate":    res.Duplicate,
		"payment":      toPayment(res.Payment),
		"subscription": toUserSubscription(res.Subscription),
	})
}
