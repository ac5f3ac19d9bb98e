package otps

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const otpColumns = `id, account_id, otp, COALESCE(new_email, ''), COALESCE(new_password_hash, ''),
		 expires_at, created_at`

func scanOtp(row *sql.Row) (*models.AccountOtp, error) {
	o := &models.AccountOtp{}
	err := row.Scan(&o.ID, &o.AccountID, &o.Otp, &o.NewEmail, &o.NewPasswordHash, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) Create(ctx context.Context, otp *models.AccountOtp) (*models.AccountOtp, error) {
	query :=
		`INSERT INTO account_otps (account_id, otp, new_email, new_password_hash, expires_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		otp.AccountID, otp.Otp, otp.NewEmail, otp.NewPasswordHash, otp.ExpiresAt).Scan(&otp.ID, &otp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return otp, nil
}

func (r *PostgresRepository) FindPending(ctx context.Context, accountID, newEmail string, now time.Time) (*models.AccountOtp, error) {
	query :=
		`SELECT ` + otpColumns + ` FROM account_otps
		 WHERE account_id = $1 AND new_email IS NOT DISTINCT FROM NULLIF($2, '') AND expires_at > $3
		 ORDER BY created_at DESC LIMIT 1`

	return scanOtp(r.db.QueryRowContext(ctx, query, accountID, newEmail, now))
}

func (r *PostgresRepository) LockLatest(ctx context.Context, accountID string) (*models.AccountOtp, error) {
	query :=
		`SELECT ` + otpColumns + ` FROM account_otps
		 WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT 1
		 FOR UPDATE`

	return scanOtp(r.db.QueryRowContext(ctx, query, accountID))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	n, err := r.deleteWhere(ctx, `DELETE FROM account_otps WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteForAccount(ctx context.Context, accountID string) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM account_otps WHERE account_id = $1`, accountID)
}

func (r *PostgresRepository) DeleteExpiredForAccount(ctx context.Context, accountID string, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM account_otps WHERE account_id = $1 AND expires_at < $2`, accountID, now)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM account_otps WHERE expires_at < $1`, now)
}

func (r *PostgresRepository) deleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
