package payments

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Payment) (*models.Payment, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
}
