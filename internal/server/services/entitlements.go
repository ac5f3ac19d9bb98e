package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

// Denial reasons shown to the caller.
const (
	ReasonNoSubscription = "No subscription found."
	ReasonNotActive      = "Your subscription is not active."
	ReasonSelectStyle    = "Your subscription does not allow selecting a style."
)

// EntitlementRequest describes the action being attempted. An empty Style
// means no style was selected.
type EntitlementRequest struct {
	Voice           string
	Style           string
	DurationMinutes int
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// checkPeriod applies the subscription-level checks. Expiry is compared
// against now even when the sweep has not flipped the status yet.
func checkPeriod(now time.Time, sub *models.UserSubscription) (Decision, bool) {
	if sub == nil {
		return deny(ReasonNoSubscription), false
	}
	if sub.Status == models.SubscriptionExpired || sub.ExpiresAt.Before(now) {
		return deny("Your %s subscription expired on %s.", sub.SubscriptionName, sub.ExpiresAt.Format(time.DateOnly)), false
	}
	if sub.Status != models.SubscriptionActive {
		return deny(ReasonNotActive), false
	}
	return allow(), true
}

// Decide evaluates req against a subscription period, its features and the
// number of companions the user already owns. The checks run in a fixed
// order and the first failure decides. Negative numeric limits are
// unlimited.
func Decide(now time.Time, sub *models.UserSubscription, features FeatureSet, companions int, req EntitlementRequest) Decision {
	if d, ok := checkPeriod(now, sub); !ok {
		return d
	}

	if limit := features.MaxCompanions(); limit >= 0 && int64(companions) >= limit {
		return deny("You have reached your maximum allowed companions (%d).", limit)
	}

	if !slices.Contains(features.VoiceTypes(), req.Voice) {
		return deny("Your subscription does not allow using voice type: %s", req.Voice)
	}

	styles, ok := features.StyleOptions()
	switch {
	case !ok && req.Style != "":
		return deny(ReasonSelectStyle)
	case ok && !slices.Contains(styles, req.Style):
		return deny("Your subscription does not allow using style: %s", req.Style)
	}

	if limit := features.MaxSessionMinutes(); limit >= 0 && int64(req.DurationMinutes) > limit {
		return deny("Your subscription allows maximum session duration of %d minutes.", limit)
	}

	return allow()
}

type EntitlementService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	clock       clock.Clock
}

func NewEntitlementService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger, clk clock.Clock) *EntitlementService {
	return &EntitlementService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "entitlements"),
		clock:       clk,
	}
}

// Evaluate decides whether userID may perform req under the latest
// subscription period.
func (s *EntitlementService) Evaluate(ctx context.Context, userID string, req EntitlementRequest) (*Decision, error) {
	d, err := s.evaluate(ctx, s.db, userID, req)
	if err != nil {
		return nil, fail(ctx, s.log, "evaluate", err)
	}
	return &d, nil
}

func (s *EntitlementService) evaluate(ctx context.Context, db dbx.DBTX, userID string, req EntitlementRequest) (Decision, error) {
	now := s.clock.Now()

	sub, err := s.repomanager.UserSubscriptions(db).Latest(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return Decision{}, err
	}
	if d, ok := checkPeriod(now, sub); !ok {
		return d, nil
	}

	rows, err := s.repomanager.Subscriptions(db).Features(ctx, sub.SubscriptionID)
	if err != nil {
		return Decision{}, err
	}
	features, err := NewFeatureSet(rows)
	if err != nil {
		s.log.Warn(ctx, "ignoring malformed feature values", "subscription_id", sub.SubscriptionID, "error", err)
	}

	count, err := s.repomanager.Companions(db).CountByUser(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	return Decide(now, sub, features, count, req), nil
}
