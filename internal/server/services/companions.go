package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

// DeniedError carries the reason an action was refused by the plan.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }

func (e *DeniedError) Unwrap() error { return common.ErrNotEntitled }

type NewCompanion struct {
	Name            string
	Subject         string
	HelpWith        string
	Voice           string
	Style           string
	DurationMinutes int
}

type CompanionService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	log          logging.Logger
	entitlements *EntitlementService
}

func NewCompanionService(db *sql.DB, m repomanager.RepositoryManager, entitlements *EntitlementService, log logging.Logger) *CompanionService {
	return &CompanionService{
		db:           db,
		repomanager:  m,
		log:          log.With("module", "companions"),
		entitlements: entitlements,
	}
}

func validateCompanion(in *NewCompanion) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Voice = strings.TrimSpace(in.Voice)
	in.Style = strings.TrimSpace(in.Style)
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", common.ErrValidation)
	case in.Voice == "":
		return fmt.Errorf("%w: voice is required", common.ErrValidation)
	case in.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration must be positive", common.ErrValidation)
	}
	return nil
}

// Create stores a companion if the user's plan allows it. The user row is
// locked for the check and insert, so parallel requests cannot both pass
// the companion limit.
func (s *CompanionService) Create(ctx context.Context, userID string, in NewCompanion) (*models.Companion, error) {
	if err := validateCompanion(&in); err != nil {
		return nil, err
	}

	var created *models.Companion
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).LockByID(ctx, userID); err != nil {
			return err
		}

		d, err := s.entitlements.evaluate(ctx, tx, userID, EntitlementRequest{
			Voice:           in.Voice,
			Style:           in.Style,
			DurationMinutes: in.DurationMinutes,
		})
		if err != nil {
			return err
		}
		if !d.Allowed {
			return &DeniedError{Reason: d.Reason}
		}

		created, err = s.repomanager.Companions(tx).Create(ctx, &models.Companion{
			UserID:          userID,
			Name:            in.Name,
			Subject:         strings.TrimSpace(in.Subject),
			HelpWith:        strings.TrimSpace(in.HelpWith),
			Voice:           in.Voice,
			Style:           in.Style,
			DurationMinutes: in.DurationMinutes,
		})
		return err
	})
	if err != nil {
		return nil, fail(ctx, s.log, "create companion", err)
	}
	return created, nil
}

func (s *CompanionService) List(ctx context.Context, userID string) ([]models.Companion, error) {
	list, err := s.repomanager.Companions(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fail(ctx, s.log, "list companions", err)
	}
	return list, nil
}
