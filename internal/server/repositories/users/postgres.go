package users

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

const userColumns = `id, name, COALESCE(avatar, ''), COALESCE(selected_account_id::text, ''),
		 COALESCE(session_token_hash, ''), created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Avatar, &u.SelectedAccountID, &u.SessionTokenHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (name, avatar)
		 VALUES ($1, NULLIF($2, ''))
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, user.Name, user.Avatar).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) LockByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// UpdateSession records the selected account and the hash of the current
// session token. An empty tokenHash clears the session.
func (r *PostgresRepository) UpdateSession(ctx context.Context, userID, selectedAccountID, tokenHash string) error {
	query :=
		`UPDATE users
		 SET selected_account_id = COALESCE(NULLIF($2, '')::uuid, selected_account_id),
		     session_token_hash = NULLIF($3, '')
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, userID, selectedAccountID, tokenHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, userID, name, avatar string) (*models.User, error) {
	query :=
		`UPDATE users
		 SET name = $2, avatar = NULLIF($3, '')
		 WHERE id = $1
		 RETURNING ` + userColumns

	return scanUser(r.db.QueryRowContext(ctx, query, userID, name, avatar))
}
