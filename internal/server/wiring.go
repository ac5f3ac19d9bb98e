package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/catalog"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/mail"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens the Postgres pool and checks it answers.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// NewMailer delivers over SMTP when a host is configured and only logs
// otherwise.
func NewMailer(c *config.Config, log logging.Logger) mail.Sender {
	if c.SMTPHost == "" {
		return mail.NewLogSender(log)
	}
	return mail.NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPassword, c.MailFrom)
}

// LoadCatalog reads the configured catalog file, or the built-in one.
func LoadCatalog(c *config.Config) (*catalog.Catalog, error) {
	return catalog.LoadFile(c.CatalogFile)
}

type Services struct {
	Identity     *services.IdentityService
	Entitlements *services.EntitlementService
	Companions   *services.CompanionService
	Wallet       *services.WalletService
	Payments     *services.PaymentService
	Otp          *services.OtpService
	Lifecycle    *services.LifecycleService
	Catalog      *services.CatalogService
	Avatars      *services.AvatarService
}

func NewServices(c *config.Config, db *sql.DB, rm repomanager.RepositoryManager, mailer mail.Sender, log logging.Logger, clk clock.Clock) *Services {
	entitlements := services.NewEntitlementService(db, rm, log, clk)
	otp := services.NewOtpService(db, rm, mailer, c, log, clk)
	return &Services{
		Identity:     services.NewIdentityService(db, rm, c, log, clk),
		Entitlements: entitlements,
		Companions:   services.NewCompanionService(db, rm, entitlements, log),
		Wallet:       services.NewWalletService(db, rm, c, log, clk),
		Payments:     services.NewPaymentService(db, rm, c, log, clk),
		Otp:          otp,
		Lifecycle:    services.NewLifecycleService(db, rm, mailer, otp, log, clk),
		Catalog:      services.NewCatalogService(db, rm, log, clk),
		Avatars:      services.NewAvatarService(c, log, clk),
	}
}
