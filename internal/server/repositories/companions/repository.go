package companions

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Companion) (*models.Companion, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Companion, error)
}
