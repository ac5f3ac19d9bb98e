package usersubscriptions

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

const selectColumns = `SELECT us.id, us.user_id, us.subscription_id, s.name, us.status,
		 us.started_at, us.expires_at, COALESCE(us.external_id, '')
		 FROM user_subscriptions us
		 JOIN subscriptions s ON s.id = us.subscription_id`

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.UserSubscription, error) {
	us := &models.UserSubscription{}
	err := s.Scan(&us.ID, &us.UserID, &us.SubscriptionID, &us.SubscriptionName, &us.Status,
		&us.StartedAt, &us.ExpiresAt, &us.ExternalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return us, nil
}

func (r *PostgresRepository) Create(ctx context.Context, us *models.UserSubscription) (*models.UserSubscription, error) {
	query :=
		`INSERT INTO user_subscriptions (user_id, subscription_id, status, started_at, expires_at, external_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query, us.UserID, us.SubscriptionID, string(us.Status),
		us.StartedAt, us.ExpiresAt, us.ExternalID).Scan(&us.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return us, nil
}

func (r *PostgresRepository) Latest(ctx context.Context, userID string) (*models.UserSubscription, error) {
	query := selectColumns + `
		 WHERE us.user_id = $1
		 ORDER BY us.started_at DESC
		 LIMIT 1`
	return scan(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.UserSubscription, error) {
	query := selectColumns + `
		 WHERE us.user_id = $1
		 ORDER BY us.started_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.UserSubscription
	for rows.Next() {
		us, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.UserSubscription, error) {
	query := selectColumns + `
		 WHERE us.external_id = $1`
	return scan(r.db.QueryRowContext(ctx, query, externalID))
}

func (r *PostgresRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query :=
		`UPDATE user_subscriptions SET status = 'expired'
		 WHERE status = 'active' AND expires_at < $1`

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
