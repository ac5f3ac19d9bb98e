package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/payments"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/timex"
)

// Notification is a successful checkout reported by the payment gateway.
type Notification struct {
	UserID         string
	SubscriptionID string
	Interval       models.BillingInterval
	AmountTotal    int64
	Currency       string
	ExternalRef    string
}

type Activation struct {
	Payment      *models.Payment
	Subscription *models.UserSubscription
	// Duplicate is set when the external reference was already processed.
	Duplicate bool
}

type PaymentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	clock       clock.Clock
	reminders   reminderScheduler
}

func NewPaymentService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger, clk clock.Clock) *PaymentService {
	log = log.With("module", "payments")
	return &PaymentService{
		db:          db,
		repomanager: m,
		log:         log,
		clock:       clk,
		reminders:   reminderScheduler{repomanager: m, log: log, lead: cfg.ReminderLeadTime},
	}
}

func validateNotification(n *Notification) error {
	n.Currency = strings.ToLower(strings.TrimSpace(n.Currency))
	switch {
	case n.UserID == "", n.SubscriptionID == "", n.ExternalRef == "":
		return fmt.Errorf("%w: user, subscription and external reference are required", common.ErrValidation)
	case n.AmountTotal < 0:
		return fmt.Errorf("%w: negative amount", common.ErrValidation)
	case n.Interval != models.IntervalMonthly && n.Interval != models.IntervalYearly:
		return fmt.Errorf("%w: unknown interval %q", common.ErrValidation, n.Interval)
	}
	if n.Currency == "" {
		n.Currency = DefaultCurrency
	}
	return nil
}

// ActivateExternalPayment records a gateway payment and starts the paid
// period. The wallet is not touched. Redelivery of the same external
// reference is a no-op reported as Duplicate.
func (s *PaymentService) ActivateExternalPayment(ctx context.Context, n Notification) (*Activation, error) {
	if err := validateNotification(&n); err != nil {
		return nil, err
	}

	if dup, err := s.duplicate(ctx, n.ExternalRef); err != nil || dup != nil {
		return dup, err
	}

	now := s.clock.Now()
	expires, err := timex.AddInterval(now, string(n.Interval))
	if err != nil {
		return nil, fail(ctx, s.log, "activate payment", err)
	}

	a := &Activation{}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		plan, err := s.repomanager.Subscriptions(tx).GetByID(ctx, n.SubscriptionID)
		if err != nil {
			return err
		}
		if _, err := s.repomanager.Users(tx).GetByID(ctx, n.UserID); err != nil {
			return err
		}

		payment, err := s.repomanager.Payments(tx).Create(ctx, &models.Payment{
			UserID:         n.UserID,
			Amount:         n.AmountTotal,
			Currency:       n.Currency,
			Status:         models.PaymentSucceeded,
			Method:         models.PaymentMethodExternal,
			SubscriptionID: plan.ID,
			ExternalRef:    n.ExternalRef,
		})
		if err != nil {
			return err
		}

		us, err := s.repomanager.UserSubscriptions(tx).Create(ctx, &models.UserSubscription{
			UserID:           n.UserID,
			SubscriptionID:   plan.ID,
			SubscriptionName: plan.Name,
			Status:           models.SubscriptionActive,
			StartedAt:        now,
			ExpiresAt:        expires,
			ExternalID:       n.ExternalRef,
		})
		if err != nil {
			return err
		}

		a.Payment = payment
		a.Subscription = us
		return nil
	})
	if errors.Is(err, payments.ErrDuplicateExternalRef) {
		// lost a race with a concurrent delivery of the same notification
		return s.duplicate(ctx, n.ExternalRef)
	}
	if err != nil {
		return nil, fail(ctx, s.log, "activate payment", err)
	}

	s.log.Info(ctx, "external payment activated", "user_id", n.UserID, "external_ref", n.ExternalRef, "plan", a.Subscription.SubscriptionName)
	s.reminders.schedule(ctx, s.db, now, a.Subscription, a.Subscription.SubscriptionName, n.AmountTotal, n.Currency)
	return a, nil
}

// duplicate returns the earlier activation of ref, or nil when ref is new.
func (s *PaymentService) duplicate(ctx context.Context, ref string) (*Activation, error) {
	payment, err := s.repomanager.Payments(s.db).GetByExternalRef(ctx, ref)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(ctx, s.log, "activate payment", err)
	}

	a := &Activation{Payment: payment, Duplicate: true}
	us, err := s.repomanager.UserSubscriptions(s.db).GetByExternalID(ctx, ref)
	switch {
	case err == nil:
		a.Subscription = us
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fail(ctx, s.log, "activate payment", err)
	}
	s.log.Info(ctx, "duplicate payment notification ignored", "external_ref", ref)
	return a, nil
}
