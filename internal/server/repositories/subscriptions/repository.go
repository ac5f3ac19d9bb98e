package subscriptions

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository reads and seeds the plan catalog: plans, features, per-plan
// feature values and prices.
type Repository interface {
	List(ctx context.Context) ([]models.Subscription, error)
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	GetByName(ctx context.Context, name string) (*models.Subscription, error)
	Features(ctx context.Context, subscriptionID string) ([]models.SubscriptionFeature, error)
	Prices(ctx context.Context, subscriptionID string) ([]models.SubscriptionPrice, error)
	GetPrice(ctx context.Context, priceID string) (*models.SubscriptionPrice, error)

	UpsertPlan(ctx context.Context, plan *models.Subscription) (*models.Subscription, error)
	UpsertFeature(ctx context.Context, feature *models.Feature) (*models.Feature, error)
	SetFeatureValue(ctx context.Context, subscriptionID, featureID, value string) error
	UpsertPrice(ctx context.Context, price *models.SubscriptionPrice) (*models.SubscriptionPrice, error)
}
