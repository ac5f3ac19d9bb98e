package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

// reminderScheduler enqueues the renewal reminder of a freshly started
// subscription period. It runs after commit; failures are only logged.
type reminderScheduler struct {
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	lead        time.Duration
}

func reminderDue(now, expiresAt time.Time, lead time.Duration) time.Time {
	due := expiresAt.Add(-lead)
	if due.Before(now) {
		return now
	}
	return due
}

func (r reminderScheduler) schedule(ctx context.Context, db dbx.DBTX, now time.Time, us *models.UserSubscription, planName string, priceCents int64, currency string) {
	ctx = context.WithoutCancel(ctx)

	payload, err := r.payload(ctx, db, us.UserID)
	if err != nil {
		r.log.Warn(ctx, "renewal reminder not scheduled", "user_subscription_id", us.ID, "error", err)
		return
	}
	payload.PlanName = planName
	payload.PriceCents = priceCents
	payload.Currency = currency
	payload.ExpiresAt = us.ExpiresAt

	rem := &models.Reminder{
		DueAt:              reminderDue(now, us.ExpiresAt, r.lead),
		UserSubscriptionID: us.ID,
		Payload:            payload,
	}
	if err := r.repomanager.Reminders(db).Schedule(ctx, rem); err != nil {
		r.log.Warn(ctx, "renewal reminder not scheduled", "user_subscription_id", us.ID, "error", err)
		return
	}
	r.log.Debug(ctx, "renewal reminder scheduled", "user_subscription_id", us.ID, "due_at", rem.DueAt)
}

// payload addresses the reminder to the email of the user's selected account.
func (r reminderScheduler) payload(ctx context.Context, db dbx.DBTX, userID string) (models.ReminderPayload, error) {
	user, err := r.repomanager.Users(db).GetByID(ctx, userID)
	if err != nil {
		return models.ReminderPayload{}, err
	}
	account, err := r.repomanager.Accounts(db).GetByID(ctx, user.SelectedAccountID)
	if err != nil {
		return models.ReminderPayload{}, err
	}
	return models.ReminderPayload{UserID: user.ID, Email: account.Email, Name: user.Name}, nil
}
