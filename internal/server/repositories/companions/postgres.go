package companions

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Companion) (*models.Companion, error) {
	query :=
		`INSERT INTO companions (user_id, name, subject, help_with, voice, style, duration_minutes)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, c.UserID, c.Name, c.Subject, c.HelpWith, c.Voice, c.Style,
		c.DurationMinutes).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM companions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]models.Companion, error) {
	query :=
		`SELECT id, user_id, name, subject, help_with, voice, COALESCE(style, ''), duration_minutes, created_at
		 FROM companions WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Companion
	for rows.Next() {
		var c models.Companion
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Subject, &c.HelpWith, &c.Voice, &c.Style,
			&c.DurationMinutes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
