package accounts

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type Repository interface {
	// Upsert inserts the account or, when (email, provider) exists, refreshes
	// it and returns the stored row. The caller compares UserID to detect a
	// row owned by someone else.
	Upsert(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmailProvider(ctx context.Context, email, provider string) (*models.Account, error)
	ListByEmail(ctx context.Context, email string) ([]models.Account, error)
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}
