package wallets

import (
	"context"

	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID string) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	// LockByUserID reads the wallet with FOR UPDATE. Concurrent debits and
	// top-ups of one wallet serialize on this lock.
	LockByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	Credit(ctx context.Context, walletID string, amount int64) (int64, error)
	// Debit subtracts amount only while the balance covers it.
	Debit(ctx context.Context, walletID string, amount int64) (int64, error)
	AddTransaction(ctx context.Context, tx *models.WalletTransaction) (*models.WalletTransaction, error)
	Transactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error)
	SumTransactions(ctx context.Context, walletID string) (int64, error)
}
