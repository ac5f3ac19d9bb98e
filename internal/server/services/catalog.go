package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/catalog"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

type SeedReport struct {
	Features int
	Plans    int
	Prices   int
}

// PlanView is a catalog plan with its feature values and active prices.
type PlanView struct {
	Plan     models.Subscription
	Features []models.SubscriptionFeature
	Prices   []models.SubscriptionPrice
}

// SubscriptionView is one period of a user's subscription history. Active
// is evaluated against the clock, not only the stored status.
type SubscriptionView struct {
	models.UserSubscription
	Features []models.SubscriptionFeature
	Active   bool
}

type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	clock       clock.Clock
}

func NewCatalogService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger, clk clock.Clock) *CatalogService {
	return &CatalogService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "catalog"),
		clock:       clk,
	}
}

// Seed upserts the catalog in one transaction. Running it again with the
// same catalog changes nothing.
func (s *CatalogService) Seed(ctx context.Context, c *catalog.Catalog) (*SeedReport, error) {
	report := &SeedReport{}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Subscriptions(tx)

		featureIDs := make(map[string]string, len(c.Features))
		for _, f := range c.Features {
			stored, err := repo.UpsertFeature(ctx, &models.Feature{Name: f.Name, Type: f.Type, Description: f.Description})
			if err != nil {
				return err
			}
			featureIDs[f.Name] = stored.ID
			report.Features++
		}

		for _, p := range c.Plans {
			plan, err := repo.UpsertPlan(ctx, &models.Subscription{Name: p.Name, Description: p.Description})
			if err != nil {
				return err
			}
			report.Plans++

			names := make([]string, 0, len(p.Features))
			for name := range p.Features {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if err := repo.SetFeatureValue(ctx, plan.ID, featureIDs[name], p.Features[name]); err != nil {
					return err
				}
			}

			for _, pr := range p.Prices {
				_, err := repo.UpsertPrice(ctx, &models.SubscriptionPrice{
					SubscriptionID:  plan.ID,
					PriceCents:      pr.PriceCents,
					Currency:        strings.ToLower(pr.Currency),
					Interval:        pr.Interval,
					ExternalPriceID: pr.ExternalPriceID,
					IsActive:        !pr.Inactive,
				})
				if err != nil {
					return err
				}
				report.Prices++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fail(ctx, s.log, "seed catalog", err)
	}

	s.log.Info(ctx, "catalog seeded", "features", report.Features, "plans", report.Plans, "prices", report.Prices)
	return report, nil
}

func (s *CatalogService) Plans(ctx context.Context) ([]PlanView, error) {
	repo := s.repomanager.Subscriptions(s.db)

	plans, err := repo.List(ctx)
	if err != nil {
		return nil, fail(ctx, s.log, "list plans", err)
	}

	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		features, err := repo.Features(ctx, p.ID)
		if err != nil {
			return nil, fail(ctx, s.log, "list plans", err)
		}
		prices, err := repo.Prices(ctx, p.ID)
		if err != nil {
			return nil, fail(ctx, s.log, "list plans", err)
		}
		out = append(out, PlanView{Plan: p, Features: features, Prices: prices})
	}
	return out, nil
}

// UserSubscriptions returns the user's history, newest first, with the
// feature values of each plan.
func (s *CatalogService) UserSubscriptions(ctx context.Context, userID string) ([]SubscriptionView, error) {
	history, err := s.repomanager.UserSubscriptions(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fail(ctx, s.log, "list user subscriptions", err)
	}

	now := s.clock.Now()
	repo := s.repomanager.Subscriptions(s.db)
	features := make(map[string][]models.SubscriptionFeature)

	out := make([]SubscriptionView, 0, len(history))
	for _, us := range history {
		fs, ok := features[us.SubscriptionID]
		if !ok {
			if fs, err = repo.Features(ctx, us.SubscriptionID); err != nil {
				return nil, fail(ctx, s.log, "list user subscriptions", err)
			}
			features[us.SubscriptionID] = fs
		}
		_, active := checkPeriod(now, &us)
		out = append(out, SubscriptionView{UserSubscription: us, Features: fs, Active: active})
	}
	return out, nil
}
