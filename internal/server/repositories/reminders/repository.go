package reminders

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository is the time-ordered schedule of renewal reminders.
type Repository interface {
	// Schedule inserts the reminder or moves the existing one for the same
	// user subscription.
	Schedule(ctx context.Context, r *models.Reminder) error
	// ClaimDue locks the earliest due reminder not in exclude, skipping rows
	// locked by concurrent sweeps. Returns common.ErrorNotFound when none is due.
	// A row whose payload cannot be decoded is still returned, with its ID set,
	// alongside the decode error.
	ClaimDue(ctx context.Context, now time.Time, exclude []string) (*models.Reminder, error)
	Delete(ctx context.Context, id string) error
}
