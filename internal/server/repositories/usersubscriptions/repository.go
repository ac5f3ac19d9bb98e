package usersubscriptions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, us *models.UserSubscription) (*models.UserSubscription, error)
	// Latest returns the user's most recently started subscription.
	Latest(ctx context.Context, userID string) (*models.UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]models.UserSubscription, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.UserSubscription, error)
	// ExpireDue flips active rows past expiry to expired and returns how many changed.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
