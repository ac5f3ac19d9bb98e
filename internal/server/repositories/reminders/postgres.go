package reminders

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *PostgresRepository) Schedule(ctx context.Context, rem *models.Reminder) error {
	payload, err := json.Marshal(rem.Payload)
	if err != nil {
		return fmt.Errorf("encode reminder payload: %w", err)
	}

	query :=
		`INSERT INTO subscription_reminders (due_at, user_subscription_id, payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_subscription_id) DO UPDATE
		 SET due_at = EXCLUDED.due_at, payload = EXCLUDED.payload
		 RETURNING id`

	if err := r.db.QueryRowContext(ctx, query, rem.DueAt, rem.UserSubscriptionID, payload).Scan(&rem.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ClaimDue(ctx context.Context, now time.Time, exclude []string) (*models.Reminder, error) {
	if exclude == nil {
		exclude = []string{}
	}

	query :=
		`SELECT id, due_at, user_subscription_id, payload, created_at
		 FROM subscription_reminders
		 WHERE due_at <= $1 AND NOT (id::text = ANY($2::text[]))
		 ORDER BY due_at
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`

	rem := &models.Reminder{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, now, exclude).
		Scan(&rem.ID, &rem.DueAt, &rem.UserSubscriptionID, &payload, &rem.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(payload, &rem.Payload); err != nil {
		return rem, fmt.Errorf("decode reminder %s: %w", rem.ID, err)
	}
	return rem, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subscription_reminders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
