package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID string) (*models.Wallet, error) {
	query :=
		`INSERT INTO wallets (user_id, balance) VALUES ($1, 0)
		 RETURNING id, user_id, balance, updated_at`

	w := &models.Wallet{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

func (r *PostgresRepository) get(ctx context.Context, query, userID string) (*models.Wallet, error) {
	w := &models.Wallet{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrWalletNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	return r.get(ctx, `SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) LockByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	return r.get(ctx, `SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *PostgresRepository) Credit(ctx context.Context, walletID string, amount int64) (int64, error) {
	query :=
		`UPDATE wallets SET balance = balance + $1, updated_at = now()
		 WHERE id = $2
		 RETURNING balance`

	var balance int64
	if err := r.db.QueryRowContext(ctx, query, amount, walletID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrWalletNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) Debit(ctx context.Context, walletID string, amount int64) (int64, error) {
	query :=
		`UPDATE wallets SET balance = balance - $1, updated_at = now()
		 WHERE id = $2 AND balance >= $1
		 RETURNING balance`

	var balance int64
	if err := r.db.QueryRowContext(ctx, query, amount, walletID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsCheckViolation(err) {
			return 0, common.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return balance, nil
}

func (r *PostgresRepository) AddTransaction(ctx context.Context, t *models.WalletTransaction) (*models.WalletTransaction, error) {
	query :=
		`INSERT INTO wallet_transactions (wallet_id, amount, type)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`

	if err := r.db.QueryRowContext(ctx, query, t.WalletID, t.Amount, string(t.Type)).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// Transactions lists the newest entries first; limit <= 0 means all.
func (r *PostgresRepository) Transactions(ctx context.Context, walletID string, limit int) ([]models.WalletTransaction, error) {
	query :=
		`SELECT id, wallet_id, amount, type, created_at FROM wallet_transactions
		 WHERE wallet_id = $1
		 ORDER BY created_at DESC
		 LIMIT NULLIF($2, 0)`

	rows, err := r.db.QueryContext(ctx, query, walletID, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SumTransactions(ctx context.Context, walletID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE wallet_id = $1`, walletID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}
