package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/timex"
)

// DefaultCurrency is recorded on wallet top-ups; wallets are single currency.
const DefaultCurrency = "usd"

// Purchase is the outcome of a subscription bought from the wallet.
type Purchase struct {
	Subscription *models.UserSubscription
	Payment      *models.Payment
	Balance      int64
}

type Reconciliation struct {
	WalletID string
	Balance  int64
	Sum      int64
}

func (r *Reconciliation) Balanced() bool { return r.Balance == r.Sum }

// WalletService keeps the wallet balance, its transaction log and the
// payment records in step. Every mutation locks the wallet row first.
type WalletService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	clock       clock.Clock
	reminders   reminderScheduler
}

func NewWalletService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger, clk clock.Clock) *WalletService {
	log = log.With("module", "wallet")
	return &WalletService{
		db:          db,
		repomanager: m,
		log:         log,
		clock:       clk,
		reminders:   reminderScheduler{repomanager: m, log: log, lead: cfg.ReminderLeadTime},
	}
}

// TopUp credits amount minor units to the user's wallet.
func (s *WalletService) TopUp(ctx context.Context, userID string, amount int64) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrValidation)
	}

	var wallet *models.Wallet
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		wallets := s.repomanager.Wallets(tx)

		w, err := wallets.LockByUserID(ctx, userID)
		if err != nil {
			return err
		}

		_, err = s.repomanager.Payments(tx).Create(ctx, &models.Payment{
			UserID:   userID,
			Amount:   amount,
			Currency: DefaultCurrency,
			Status:   models.PaymentSucceeded,
			Method:   models.PaymentMethodTopUp,
		})
		if err != nil {
			return err
		}

		_, err = wallets.AddTransaction(ctx, &models.WalletTransaction{WalletID: w.ID, Amount: amount, Type: models.TransactionTopUp})
		if err != nil {
			return err
		}

		balance, err := wallets.Credit(ctx, w.ID, amount)
		if err != nil {
			return err
		}
		w.Balance = balance
		w.UpdatedAt = s.clock.Now()
		wallet = w
		return nil
	})
	if err != nil {
		return nil, fail(ctx, s.log, "top up", err)
	}

	s.log.Info(ctx, "wallet topped up", "user_id", userID, "amount", amount, "balance", wallet.Balance)
	return wallet, nil
}

// DebitForSubscription buys one billing period of the price from the
// wallet. The balance check and the writes happen under the wallet row
// lock, so of two concurrent debits that cannot both be afforded exactly
// one succeeds.
func (s *WalletService) DebitForSubscription(ctx context.Context, userID, priceID string) (*Purchase, error) {
	subs := s.repomanager.Subscriptions(s.db)

	price, err := subs.GetPrice(ctx, priceID)
	if err != nil {
		return nil, fail(ctx, s.log, "debit", err)
	}
	if !price.IsActive {
		return nil, common.ErrPriceNotFound
	}
	plan, err := subs.GetByID(ctx, price.SubscriptionID)
	if err != nil {
		return nil, fail(ctx, s.log, "debit", err)
	}

	now := s.clock.Now()
	expires, err := timex.AddInterval(now, string(price.Interval))
	if err != nil {
		return nil, fail(ctx, s.log, "debit", err)
	}

	p := &Purchase{}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		wallets := s.repomanager.Wallets(tx)

		w, err := wallets.LockByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if w.Balance < price.PriceCents {
			return common.ErrInsufficientFunds
		}

		balance, err := wallets.Debit(ctx, w.ID, price.PriceCents)
		if err != nil {
			return err
		}

		us, err := s.repomanager.UserSubscriptions(tx).Create(ctx, &models.UserSubscription{
			UserID:           userID,
			SubscriptionID:   plan.ID,
			SubscriptionName: plan.Name,
			Status:           models.SubscriptionActive,
			StartedAt:        now,
			ExpiresAt:        expires,
		})
		if err != nil {
			return err
		}

		_, err = wallets.AddTransaction(ctx, &models.WalletTransaction{WalletID: w.ID, Amount: -price.PriceCents, Type: models.TransactionSubscription})
		if err != nil {
			return err
		}

		payment, err := s.repomanager.Payments(tx).Create(ctx, &models.Payment{
			UserID:         userID,
			Amount:         price.PriceCents,
			Currency:       price.Currency,
			Status:         models.PaymentSucceeded,
			Method:         models.PaymentMethodSubscription,
			SubscriptionID: plan.ID,
		})
		if err != nil {
			return err
		}

		p.Subscription = us
		p.Payment = payment
		p.Balance = balance
		return nil
	})
	if err != nil {
		return nil, fail(ctx, s.log, "debit", err)
	}

	s.log.Info(ctx, "subscription purchased from wallet", "user_id", userID, "plan", plan.Name, "amount", price.PriceCents, "balance", p.Balance)
	s.reminders.schedule(ctx, s.db, now, p.Subscription, plan.Name, price.PriceCents, price.Currency)
	return p, nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := s.repomanager.Wallets(s.db).GetByUserID(ctx, userID)
	if err != nil {
		return nil, fail(ctx, s.log, "get wallet", err)
	}
	return w, nil
}

// Transactions lists the newest ledger entries first; limit 0 means all.
func (s *WalletService) Transactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit", common.ErrValidation)
	}
	wallets := s.repomanager.Wallets(s.db)
	w, err := wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fail(ctx, s.log, "list transactions", err)
	}
	txs, err := wallets.Transactions(ctx, w.ID, limit)
	if err != nil {
		return nil, fail(ctx, s.log, "list transactions", err)
	}
	return txs, nil
}

// Reconcile compares the balance with the sum of the wallet's transactions.
// Both are read in one repeatable-read snapshot.
func (s *WalletService) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	r := &Reconciliation{}
	err := dbx.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(ctx context.Context, tx dbx.DBTX) error {
		wallets := s.repomanager.Wallets(tx)
		w, err := wallets.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := wallets.SumTransactions(ctx, w.ID)
		if err != nil {
			return err
		}
		r.WalletID, r.Balance, r.Sum = w.ID, w.Balance, sum
		return nil
	})
	if err != nil {
		return nil, fail(ctx, s.log, "reconcile", err)
	}
	if !r.Balanced() {
		s.log.Error(ctx, "wallet ledger out of balance", "wallet_id", r.WalletID, "balance", r.Balance, "sum", r.Sum)
	}
	return r, nil
}
