package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

const uniqueEmailProvider = "accounts_email_provider_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, user_id, provider, email, COALESCE(password_hash, ''), COALESCE(avatar, ''),
		 created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*models.Account, error) {
	a := &models.Account{}
	err := s.Scan(&a.ID, &a.UserID, &a.Provider, &a.Email, &a.PasswordHash, &a.Avatar, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (user_id, provider, email, password_hash, avatar)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		 ON CONFLICT (email, provider) DO UPDATE
		 SET password_hash = COALESCE(EXCLUDED.password_hash, accounts.password_hash),
		     avatar = COALESCE(EXCLUDED.avatar, accounts.avatar),
		     updated_at = now()
		 RETURNING ` + accountColumns

	row := r.db.QueryRowContext(ctx, query,
		account.UserID, account.Provider, account.Email, account.PasswordHash, account.Avatar)
	return scanAccount(row)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmailProvider(ctx context.Context, email, provider string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 AND provider = $2`
	return scanAccount(r.db.QueryRowContext(ctx, query, email, provider))
}

// ListByEmail returns every account registered with email, oldest first.
func (r *PostgresRepository) ListByEmail(ctx context.Context, email string) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) UpdateEmail(ctx context.Context, id, email string) error {
	query := `UPDATE accounts SET email = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, email)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueEmailProvider) {
			return common.ErrAccountExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return requireOne(res)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOne(res)
}

func requireOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrAccountNotFound
	}
	return nil
}
