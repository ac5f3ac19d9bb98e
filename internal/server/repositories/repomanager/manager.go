package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/companions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/otps"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/payments"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/reminders"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/subscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/usersubscriptions"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/wallets"
)

// RepositoryManager vends repositories bound to a handle, so a service can
// run the same repository against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Accounts(db dbx.DBTX) accounts.Repository
	Otps(db dbx.DBTX) otps.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
	UserSubscriptions(db dbx.DBTX) usersubscriptions.Repository
	Companions(db dbx.DBTX) companions.Repository
	Wallets(db dbx.DBTX) wallets.Repository
	Payments(db dbx.DBTX) payments.Repository
	Reminders(db dbx.DBTX) reminders.Repository
}
