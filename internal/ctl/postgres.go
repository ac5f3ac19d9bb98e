package ctl

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/netx"
	"github.com/dmitrijs2005/subkeeper/internal/server"
	"github.com/dmitrijs2005/subkeeper/internal/server/catalog"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
)

const uploadTimeout = 2 * time.Minute

type postgresOps struct {
	db     *sql.DB
	rm     *repomanager.PostgresRepositoryManager
	svc    *server.Services
	client *http.Client
}

// OpenPostgres is the Opener used by the binary. Logs go to stderr so
// command output on stdout stays parseable.
func OpenPostgres(ctx context.Context, cfg *config.Config) (Ops, error) {
	db, err := server.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	log := logging.NewJSON(os.Stderr, cfg.LogLevel)
	svc := server.NewServices(cfg, db, rm, server.NewMailer(cfg, log), log, clock.Real())
	return &postgresOps{db: db, rm: rm, svc: svc, client: &http.Client{Timeout: uploadTimeout}}, nil
}

func (o *postgresOps) Migrate(ctx context.Context) error {
	return o.rm.RunMigrations(ctx, o.db)
}

func (o *postgresOps) MigrationStatus(ctx context.Context) error {
	return o.rm.MigrationStatus(ctx, o.db)
}

func (o *postgresOps) SeedCatalog(ctx context.Context, c *catalog.Catalog) (*services.SeedReport, error) {
	return o.svc.Catalog.Seed(ctx, c)
}

func (o *postgresOps) Sweep(ctx context.Context) (*services.SweepReport, error) {
	return o.svc.Lifecycle.RunSweep(ctx)
}

func (o *postgresOps) OtpCleanup(ctx context.Context) (int64, error) {
	return o.svc.Lifecycle.RunOtpCleanup(ctx)
}

func (o *postgresOps) Reconcile(ctx context.Context, userID string) (*services.Reconciliation, error) {
	return o.svc.Wallet.Reconcile(ctx, userID)
}

// UploadAvatar pushes the image straight to object storage and then points
// the profile at the new key, keeping the current name.
func (o *postgresOps) UploadAvatar(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	p, err := o.svc.Identity.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	key, url, err := o.svc.Avatars.UploadURL(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := netx.PutPresigned(ctx, o.client, url, contentType, body, size); err != nil {
		return "", err
	}
	if _, err := o.svc.Identity.UpdateProfile(ctx, userID, p.User.Name, key); err != nil {
		return "", err
	}
	return key, nil
}

func (o *postgresOps) Close() error {
	return o.db.Close()
}
