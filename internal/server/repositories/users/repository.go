package users

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// LockByID reads the user row with FOR UPDATE; only meaningful inside a tx.
	LockByID(ctx context.Context, id string) (*models.User, error)
	UpdateSession(ctx context.Context, userID, selectedAccountID, tokenHash string) error
	UpdateProfile(ctx context.Context, userID, name, avatar string) (*models.User, error)
}
