package otps

import (
	"context"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

// Repository stores pending credential-change challenges.
type Repository interface {
	Create(ctx context.Context, otp *models.AccountOtp) (*models.AccountOtp, error)
	// FindPending returns the newest unexpired challenge of the account for
	// the same target email (empty means no email change).
	FindPending(ctx context.Context, accountID, newEmail string, now time.Time) (*models.AccountOtp, error)
	// LockLatest returns the account's newest challenge, the only one that
	// can be verified or resent, and locks it until the transaction ends.
	LockLatest(ctx context.Context, accountID string) (*models.AccountOtp, error)
	// Delete fails with common.ErrorNotFound when the challenge is already gone.
	Delete(ctx context.Context, id string) error
	DeleteForAccount(ctx context.Context, accountID string) (int64, error)
	DeleteExpiredForAccount(ctx context.Context, accountID string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
