package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

const uniqueExternalRef = "payments_external_ref_key"

// ErrDuplicateExternalRef is returned when a payment for the same gateway
// reference was already recorded.
var ErrDuplicateExternalRef = errors.New("payment already recorded")

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, user_id, amount, currency, status, method, COALESCE(subscription_id::text, ''),
		 COALESCE(external_ref, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*models.Payment, error) {
	p := &models.Payment{}
	err := s.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.Method, &p.SubscriptionID,
		&p.ExternalRef, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	query :=
		`INSERT INTO payments (user_id, amount, currency, status, method, subscription_id, external_ref)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, ''))
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, p.UserID, p.Amount, p.Currency, string(p.Status), p.Method,
		p.SubscriptionID, p.ExternalRef).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, uniqueExternalRef) {
			return nil, ErrDuplicateExternalRef
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_ref = $1`
	return scanPayment(r.db.QueryRowContext(ctx, query, ref))
}
