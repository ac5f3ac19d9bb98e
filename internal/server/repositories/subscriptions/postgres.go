package subscriptions

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

func (r *PostgresRepository) List(ctx context.Context) ([]models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM subscriptions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Subscription
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg string) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name, description FROM subscriptions WHERE `+where, arg).
		Scan(&s.ID, &s.Name, &s.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrPlanNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Subscription, error) {
	return r.getOne(ctx, "name = $1", name)
}

func (r *PostgresRepository) Features(ctx context.Context, subscriptionID string) ([]models.SubscriptionFeature, error) {
	query :=
		`SELECT sf.subscription_id, f.id, f.name, f.type, sf.value
		 FROM subscription_features sf
		 JOIN features f ON f.id = sf.feature_id
		 WHERE sf.subscription_id = $1
		 ORDER BY f.name`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.SubscriptionFeature
	for rows.Next() {
		var f models.SubscriptionFeature
		if err := rows.Scan(&f.SubscriptionID, &f.FeatureID, &f.Name, &f.Type, &f.Value); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

const priceColumns = `id, subscription_id, price_cents, currency, interval, COALESCE(external_price_id, ''), is_active`

func (r *PostgresRepository) Prices(ctx context.Context, subscriptionID string) ([]models.SubscriptionPrice, error) {
	query := `SELECT ` + priceColumns + ` FROM subscription_prices
		 WHERE subscription_id = $1 AND is_active
		 ORDER BY price_cents`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.SubscriptionPrice
	for rows.Next() {
		var p models.SubscriptionPrice
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.PriceCents, &p.Currency, &p.Interval, &p.ExternalPriceID, &p.IsActive); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) GetPrice(ctx context.Context, priceID string) (*models.SubscriptionPrice, error) {
	p := &models.SubscriptionPrice{}
	err := r.db.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM subscription_prices WHERE id = $1`, priceID).
		Scan(&p.ID, &p.SubscriptionID, &p.PriceCents, &p.Currency, &p.Interval, &p.ExternalPriceID, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrPriceNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) UpsertPlan(ctx context.Context, plan *models.Subscription) (*models.Subscription, error) {
	query :=
		`INSERT INTO subscriptions (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
		 RETURNING id`

	if err := r.db.QueryRowContext(ctx, query, plan.Name, plan.Description).Scan(&plan.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return plan, nil
}

func (r *PostgresRepository) UpsertFeature(ctx context.Context, feature *models.Feature) (*models.Feature, error) {
	query :=
		`INSERT INTO features (name, type, description) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET type = EXCLUDED.type, description = EXCLUDED.description
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query, feature.Name, string(feature.Type), feature.Description).Scan(&feature.ID)
	if err != nil {
		if dbx.IsCheckViolation(err) {
			return nil, fmt.Errorf("%w: feature type %q", common.ErrValidation, feature.Type)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return feature, nil
}

func (r *PostgresRepository) SetFeatureValue(ctx context.Context, subscriptionID, featureID, value string) error {
	query :=
		`INSERT INTO subscription_features (subscription_id, feature_id, value) VALUES ($1, $2, $3)
		 ON CONFLICT (subscription_id, feature_id) DO UPDATE SET value = EXCLUDED.value`

	if _, err := r.db.ExecContext(ctx, query, subscriptionID, featureID, value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpsertPrice(ctx context.Context, price *models.SubscriptionPrice) (*models.SubscriptionPrice, error) {
	query :=
		`INSERT INTO subscription_prices (subscription_id, price_cents, currency, interval, external_price_id, is_active)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 ON CONFLICT ON CONSTRAINT subscription_prices_plan_interval_key DO UPDATE
		 SET price_cents = EXCLUDED.price_cents,
		     external_price_id = EXCLUDED.external_price_id,
		     is_active = EXCLUDED.is_active
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query, price.SubscriptionID, price.PriceCents, price.Currency,
		string(price.Interval), price.ExternalPriceID, price.IsActive).Scan(&price.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return price, nil
}
