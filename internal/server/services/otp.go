package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/cryptox"
	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/mail"
	"github.com/dmitrijs2005/subkeeper/internal/server/models"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
)

type ChallengeStatus string

const (
	ChallengeSent          ChallengeStatus = "sent"
	ChallengeAlreadySent   ChallengeStatus = "already_sent"
	ChallengeExpiredResent ChallengeStatus = "expired_resent"
	ChallengeApplied       ChallengeStatus = "applied"
)

// ChangeRequest asks to change the email and/or password of an account.
type ChangeRequest struct {
	AccountID       string
	CurrentPassword string
	NewEmail        string
	NewPassword     string
}

type ChallengeResult struct {
	Status    ChallengeStatus
	ExpiresAt time.Time
}

// OtpService guards credential changes with a short-lived emailed code.
// A challenge is issued, then either verified and applied, or it expires.
// Codes are compared against wall-clock time at verification; nothing
// expires them in the background except Cleanup.
type OtpService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	clock       clock.Clock
	mailer      mail.Sender
	validity    time.Duration
}

func NewOtpService(db *sql.DB, m repomanager.RepositoryManager, mailer mail.Sender, cfg *config.Config, log logging.Logger, clk clock.Clock) *OtpService {
	return &OtpService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "otp"),
		clock:       clk,
		mailer:      mailer,
		validity:    cfg.OtpValidityDuration,
	}
}

// account loads the account and checks its current password.
func (s *OtpService) account(ctx context.Context, accountID, password string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !cryptox.VerifyPassword(account.PasswordHash, password) {
		return nil, common.ErrBadCredential
	}
	return account, nil
}

func (s *OtpService) RequestChange(ctx context.Context, req ChangeRequest) (*ChallengeResult, error) {
	account, err := s.account(ctx, req.AccountID, req.CurrentPassword)
	if err != nil {
		return nil, fail(ctx, s.log, "request change", err)
	}

	newEmail := normalizeEmail(req.NewEmail)
	if newEmail == account.Email {
		newEmail = ""
	}
	if newEmail == "" && req.NewPassword == "" {
		return nil, fmt.Errorf("%w: nothing to change", common.ErrValidation)
	}
	if newEmail != "" {
		if !strings.Contains(newEmail, "@") {
			return nil, fmt.Errorf("%w: invalid email", common.ErrValidation)
		}
		_, err := s.repomanager.Accounts(s.db).GetByEmailProvider(ctx, newEmail, account.Provider)
		if err == nil {
			return nil, common.ErrAccountExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fail(ctx, s.log, "request change", err)
		}
	}

	var newPasswordHash string
	if req.NewPassword != "" {
		if newPasswordHash, err = cryptox.HashPassword(req.NewPassword); err != nil {
			return nil, fail(ctx, s.log, "request change", err)
		}
	}

	now := s.clock.Now()
	var ch *models.AccountOtp
	res := &ChallengeResult{Status: ChallengeSent}

	// The user row lock serializes requests of one account, so at most one
	// challenge per account survives the transaction.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).LockByID(ctx, account.UserID); err != nil {
			return err
		}
		otps := s.repomanager.Otps(tx)
		if _, err := otps.DeleteExpiredForAccount(ctx, account.ID, now); err != nil {
			return err
		}

		pending, err := otps.FindPending(ctx, account.ID, newEmail, now)
		switch {
		case err == nil:
			res.Status, res.ExpiresAt = ChallengeAlreadySent, pending.ExpiresAt
			return nil
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		if _, err := otps.DeleteForAccount(ctx, account.ID); err != nil {
			return err
		}
		ch, err = s.issue(ctx, tx, account.ID, newEmail, newPasswordHash, now)
		return err
	})
	if err != nil {
		return nil, fail(ctx, s.log, "request change", err)
	}
	if ch == nil {
		return res, nil
	}

	s.sendCode(ctx, recipient(account, ch), ch)
	res.ExpiresAt = ch.ExpiresAt
	return res, nil
}

// Verify applies the change guarded by otp. Only the account's newest
// challenge is accepted. A correct but expired code that targets a new
// email is replaced by a fresh one instead of failing.
func (s *OtpService) Verify(ctx context.Context, accountID, otp, currentPassword string) (*ChallengeResult, error) {
	account, err := s.account(ctx, accountID, currentPassword)
	if err != nil {
		return nil, fail(ctx, s.log, "verify otp", err)
	}

	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, common.ErrInvalidOtp
	}

	now := s.clock.Now()
	var ch, next *models.AccountOtp

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		otps := s.repomanager.Otps(tx)
		latest, err := otps.LockLatest(ctx, account.ID)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(latest.Otp), []byte(otp)) != 1 {
			return common.ErrInvalidOtp
		}
		if err := otps.Delete(ctx, latest.ID); err != nil {
			return err
		}
		ch = latest

		if ch.Expired(now) {
			if ch.NewEmail == "" {
				return nil
			}
			next, err = s.issue(ctx, tx, ch.AccountID, ch.NewEmail, ch.NewPasswordHash, now)
			return err
		}

		accounts := s.repomanager.Accounts(tx)
		if ch.NewEmail != "" {
			if err := accounts.UpdateEmail(ctx, account.ID, ch.NewEmail); err != nil {
				return err
			}
		}
		if ch.NewPasswordHash != "" {
			if err := accounts.UpdatePasswordHash(ctx, account.ID, ch.NewPasswordHash); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) && ch == nil {
		return nil, common.ErrInvalidOtp
	}
	if err != nil {
		return nil, fail(ctx, s.log, "verify otp", err)
	}

	switch {
	case next != nil:
		s.sendCode(ctx, recipient(account, next), next)
		s.log.Info(ctx, "expired otp replaced", "account_id", account.ID)
		return &ChallengeResult{Status: ChallengeExpiredResent, ExpiresAt: next.ExpiresAt}, nil
	case ch.Expired(now):
		return nil, common.ErrChallengeExpired
	}

	s.log.Info(ctx, "credential change applied", "account_id", account.ID,
		"email_changed", ch.NewEmail != "", "password_changed", ch.NewPasswordHash != "")
	return &ChallengeResult{Status: ChallengeApplied}, nil
}

// Resend replaces the latest challenge with a new code for the same target.
func (s *OtpService) Resend(ctx context.Context, accountID string) (*ChallengeResult, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, fail(ctx, s.log, "resend otp", err)
	}

	var next *models.AccountOtp
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		otps := s.repomanager.Otps(tx)
		latest, err := otps.LockLatest(ctx, account.ID)
		if err != nil {
			return err
		}
		if latest.NewEmail == "" {
			return common.ErrNothingToResend
		}
		if err := otps.Delete(ctx, latest.ID); err != nil {
			return err
		}
		next, err = s.issue(ctx, tx, latest.AccountID, latest.NewEmail, latest.NewPasswordHash, s.clock.Now())
		return err
	})
	if errors.Is(err, common.ErrorNotFound) && next == nil {
		return nil, common.ErrNothingToResend
	}
	if err != nil {
		return nil, fail(ctx, s.log, "resend otp", err)
	}
	s.sendCode(ctx, recipient(account, next), next)

	return &ChallengeResult{Status: ChallengeSent, ExpiresAt: next.ExpiresAt}, nil
}

// Cleanup deletes every challenge whose expiry is in the past.
func (s *OtpService) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Otps(s.db).DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fail(ctx, s.log, "otp cleanup", err)
	}
	if n > 0 {
		s.log.Debug(ctx, "expired otps deleted", "count", n)
	}
	return n, nil
}

func (s *OtpService) issue(ctx context.Context, db dbx.DBTX, accountID, newEmail, newPasswordHash string, now time.Time) (*models.AccountOtp, error) {
	code, err := cryptox.NewOtp()
	if err != nil {
		return nil, err
	}
	return s.repomanager.Otps(db).Create(ctx, &models.AccountOtp{
		AccountID:       accountID,
		Otp:             code,
		NewEmail:        newEmail,
		NewPasswordHash: newPasswordHash,
		ExpiresAt:       now.Add(s.validity),
	})
}

// recipient is the new email when one is being claimed, otherwise the
// account's current email.
func recipient(account *models.Account, ch *models.AccountOtp) string {
	if ch.NewEmail != "" {
		return ch.NewEmail
	}
	return account.Email
}

// sendCode mails the code. The challenge is already stored, so a failed
// send is logged and the user can ask for a resend.
func (s *OtpService) sendCode(ctx context.Context, to string, ch *models.AccountOtp) {
	ctx = context.WithoutCancel(ctx)
	msg, err := mail.OtpMessage(to, ch.Otp, s.validity)
	if err != nil {
		s.log.Error(ctx, "render otp mail", "error", err)
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn(ctx, "otp mail not sent", "account_id", ch.AccountID, "error", errors.Join(common.ErrTransient, err))
	}
}
